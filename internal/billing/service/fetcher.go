package service

import (
	"context"
	"fmt"
	"strings"

	billingdomain "github.com/famlyhq/famly/internal/billing/domain"
	"github.com/famlyhq/famly/internal/config"
	"github.com/famlyhq/famly/internal/observability"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Client  billingdomain.Client
	Metrics *observability.Metrics
}

type Fetcher struct {
	log           *zap.Logger
	client        billingdomain.Client
	metrics       *observability.Metrics
	trialOfferTag string
}

func NewFetcher(p Params) billingdomain.Fetcher {
	return &Fetcher{
		log:           p.Log.Named("billing.fetcher"),
		client:        p.Client,
		metrics:       p.Metrics,
		trialOfferTag: p.Cfg.Billing.TrialOfferTag,
	}
}

// Fetch resolves a purchase token against the platform API and normalizes the
// result. Any upstream failure or structural gap in the resource is returned as
// an error; the caller decides between queueing for retry and dropping.
func (f *Fetcher) Fetch(ctx context.Context, purchaseToken string) (billingdomain.PurchaseDetail, error) {
	raw, err := f.client.GetSubscription(ctx, purchaseToken)
	if err != nil {
		f.metrics.UpstreamFetches.WithLabelValues("error").Inc()
		return billingdomain.PurchaseDetail{}, err
	}

	detail, err := f.normalize(purchaseToken, raw)
	if err != nil {
		f.metrics.UpstreamFetches.WithLabelValues("invalid").Inc()
		return billingdomain.PurchaseDetail{}, err
	}

	f.metrics.UpstreamFetches.WithLabelValues("ok").Inc()
	return detail, nil
}

func (f *Fetcher) normalize(purchaseToken string, raw *billingdomain.RawSubscription) (billingdomain.PurchaseDetail, error) {
	if raw == nil || strings.TrimSpace(raw.SubscriptionState) == "" {
		return billingdomain.PurchaseDetail{}, fmt.Errorf("%w: missing subscription state", billingdomain.ErrIncompleteResource)
	}
	if len(raw.LineItems) == 0 {
		return billingdomain.PurchaseDetail{}, fmt.Errorf("%w: no line items", billingdomain.ErrIncompleteResource)
	}

	// Single-product subscriptions only; the first line item carries the plan.
	item := raw.LineItems[0]
	if strings.TrimSpace(item.ProductID) == "" {
		return billingdomain.PurchaseDetail{}, fmt.Errorf("%w: missing product id", billingdomain.ErrIncompleteResource)
	}

	detail := billingdomain.PurchaseDetail{
		PurchaseToken:       purchaseToken,
		ProductID:           item.ProductID,
		SubscriptionState:   raw.SubscriptionState,
		LinkedPurchaseToken: raw.LinkedPurchaseToken,
		SubscriptionStart:   raw.StartTime,
		SubscriptionEnd:     item.ExpiryTime,
	}

	var price *billingdomain.Money
	if item.AutoRenewingPlan != nil {
		detail.AutoRenewing = item.AutoRenewingPlan.AutoRenewEnabled
		price = item.AutoRenewingPlan.RecurringPrice
	}

	tagged := f.hasTrialMarker(item.OfferDetails)

	switch {
	case price != nil && price.Micros() < 0:
		return billingdomain.PurchaseDetail{}, fmt.Errorf("%w: negative recurring price", billingdomain.ErrInvalidPrice)
	case price != nil && price.Micros() == 0:
		// An explicit zero recurring price is authoritative for trial status,
		// whatever the offer tags say.
		detail.IsTrial = true
	case price != nil:
		detail.PriceMicros = price.Micros()
		detail.Currency = price.CurrencyCode
		if tagged {
			// Priced offer carrying a trial marker: the price wins.
			f.log.Warn("trial marker on priced offer, treating as paid",
				zap.String("product_id", item.ProductID),
				zap.Int64("price_micros", detail.PriceMicros))
		}
	case tagged:
		detail.IsTrial = true
	default:
		// No price and no trial signal. Inventing either would corrupt the
		// transaction history, so refuse the resource outright.
		return billingdomain.PurchaseDetail{}, fmt.Errorf("%w: no recurring price on non-trial purchase", billingdomain.ErrInvalidPrice)
	}

	if detail.IsTrial {
		start := raw.StartTime
		detail.TrialStart = &start
		detail.TrialEnd = item.ExpiryTime
	}

	return detail, nil
}

func (f *Fetcher) hasTrialMarker(offer *billingdomain.OfferDetails) bool {
	if offer == nil {
		return false
	}
	if f.trialOfferTag != "" {
		for _, tag := range offer.OfferTags {
			if strings.EqualFold(tag, f.trialOfferTag) {
				return true
			}
		}
	}
	return strings.Contains(strings.ToLower(offer.OfferID), "trial")
}
