package service

import (
	"context"
	"testing"
	"time"

	billingdomain "github.com/famlyhq/famly/internal/billing/domain"
	"github.com/famlyhq/famly/internal/config"
	"github.com/famlyhq/famly/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClient struct {
	raw *billingdomain.RawSubscription
	err error
}

func (c *stubClient) GetSubscription(context.Context, string) (*billingdomain.RawSubscription, error) {
	return c.raw, c.err
}

func newTestFetcher(raw *billingdomain.RawSubscription, err error) billingdomain.Fetcher {
	return NewFetcher(Params{
		Log:     zap.NewNop(),
		Cfg:     config.Config{Billing: config.BillingConfig{TrialOfferTag: "free-trial"}},
		Client:  &stubClient{raw: raw, err: err},
		Metrics: observability.NewMetrics(),
	})
}

func paidSubscription(state string, units int64) *billingdomain.RawSubscription {
	expiry := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return &billingdomain.RawSubscription{
		SubscriptionState: state,
		StartTime:         time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		LineItems: []billingdomain.LineItem{{
			ProductID:  "famly.premium.monthly",
			ExpiryTime: &expiry,
			AutoRenewingPlan: &billingdomain.AutoRenewingPlan{
				AutoRenewEnabled: true,
				RecurringPrice:   &billingdomain.Money{CurrencyCode: "USD", Units: units, Nanos: 990_000_000},
			},
		}},
	}
}

func TestFetchPaidSubscription(t *testing.T) {
	f := newTestFetcher(paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 4), nil)

	detail, err := f.Fetch(context.Background(), "tok123")
	require.NoError(t, err)

	assert.Equal(t, "tok123", detail.PurchaseToken)
	assert.Equal(t, "famly.premium.monthly", detail.ProductID)
	assert.Equal(t, "SUBSCRIPTION_STATE_ACTIVE", detail.SubscriptionState)
	assert.False(t, detail.IsTrial)
	assert.Equal(t, int64(4_990_000), detail.PriceMicros)
	assert.Equal(t, "USD", detail.Currency)
	assert.True(t, detail.AutoRenewing)
	assert.Nil(t, detail.TrialStart)
}

func TestFetchZeroPriceIsTrial(t *testing.T) {
	raw := paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 0)
	raw.LineItems[0].AutoRenewingPlan.RecurringPrice = &billingdomain.Money{CurrencyCode: "USD"}

	detail, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.NoError(t, err)

	assert.True(t, detail.IsTrial)
	assert.Zero(t, detail.PriceMicros)
	require.NotNil(t, detail.TrialStart)
	require.NotNil(t, detail.TrialEnd)
	assert.Equal(t, raw.StartTime, *detail.TrialStart)
}

func TestFetchZeroPriceOverridesMissingTag(t *testing.T) {
	// No offer tags at all, just an explicit zero price.
	raw := paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 0)
	raw.LineItems[0].AutoRenewingPlan.RecurringPrice = &billingdomain.Money{CurrencyCode: "USD"}
	raw.LineItems[0].OfferDetails = nil

	detail, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.NoError(t, err)
	assert.True(t, detail.IsTrial)
}

func TestFetchTrialTagOnPricedOfferStaysPaid(t *testing.T) {
	raw := paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 4)
	raw.LineItems[0].OfferDetails = &billingdomain.OfferDetails{
		BasePlanID: "monthly",
		OfferTags:  []string{"free-trial"},
	}

	detail, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.NoError(t, err)
	assert.False(t, detail.IsTrial)
	assert.Equal(t, int64(4_990_000), detail.PriceMicros)
}

func TestFetchTrialTagWithoutPrice(t *testing.T) {
	raw := paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 0)
	raw.LineItems[0].AutoRenewingPlan.RecurringPrice = nil
	raw.LineItems[0].OfferDetails = &billingdomain.OfferDetails{
		BasePlanID: "monthly",
		OfferTags:  []string{"Free-Trial"},
	}

	detail, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.NoError(t, err)
	assert.True(t, detail.IsTrial)
}

func TestFetchTrialOfferIDWithoutPrice(t *testing.T) {
	raw := paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 0)
	raw.LineItems[0].AutoRenewingPlan.RecurringPrice = nil
	raw.LineItems[0].OfferDetails = &billingdomain.OfferDetails{
		BasePlanID: "monthly",
		OfferID:    "trial-7d",
	}

	detail, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.NoError(t, err)
	assert.True(t, detail.IsTrial)
}

func TestFetchMissingPriceWithoutTrialSignalFails(t *testing.T) {
	raw := paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 0)
	raw.LineItems[0].AutoRenewingPlan.RecurringPrice = nil

	_, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.ErrorIs(t, err, billingdomain.ErrInvalidPrice)
}

func TestFetchMissingStateFails(t *testing.T) {
	raw := paidSubscription("", 4)
	_, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.ErrorIs(t, err, billingdomain.ErrIncompleteResource)
}

func TestFetchNoLineItemsFails(t *testing.T) {
	raw := paidSubscription("SUBSCRIPTION_STATE_ACTIVE", 4)
	raw.LineItems = nil
	_, err := newTestFetcher(raw, nil).Fetch(context.Background(), "tok123")
	require.ErrorIs(t, err, billingdomain.ErrIncompleteResource)
}

func TestFetchUpstreamErrorPropagates(t *testing.T) {
	_, err := newTestFetcher(nil, billingdomain.ErrUpstreamUnavailable).Fetch(context.Background(), "tok123")
	require.ErrorIs(t, err, billingdomain.ErrUpstreamUnavailable)
}
