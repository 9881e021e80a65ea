package playstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	billingdomain "github.com/famlyhq/famly/internal/billing/domain"
	"github.com/famlyhq/famly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
	Cfg config.Config
}

// Client queries the platform's subscriptionsv2 endpoint over HTTP. Request
// timeout is bounded by config; anything past it is a hard failure.
type Client struct {
	log         *zap.Logger
	http        *http.Client
	baseURL     string
	packageName string
	accessToken string
}

func NewClient(p Params) billingdomain.Client {
	return &Client{
		log:         p.Log.Named("billing.playstore"),
		http:        &http.Client{Timeout: p.Cfg.Billing.RequestTimeout},
		baseURL:     p.Cfg.Billing.BaseURL,
		packageName: p.Cfg.Billing.PackageName,
		accessToken: p.Cfg.Billing.AccessToken,
	}
}

func (c *Client) GetSubscription(ctx context.Context, purchaseToken string) (*billingdomain.RawSubscription, error) {
	endpoint := fmt.Sprintf("%s/packages/%s/purchases/subscriptionsv2/tokens/%s",
		c.baseURL,
		url.PathEscape(c.packageName),
		url.PathEscape(purchaseToken),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billingdomain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, billingdomain.ErrPurchaseNotFound
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("subscription fetch rejected",
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", billingdomain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var raw billingdomain.RawSubscription
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", billingdomain.ErrUpstreamUnavailable, err)
	}
	return &raw, nil
}
