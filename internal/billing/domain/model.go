package domain

import (
	"context"
	"errors"
	"time"
)

// RawSubscription is the billing platform's authoritative view of one
// subscription purchase, as returned by its API. Field shapes follow the
// upstream resource; nothing here is locally invented.
type RawSubscription struct {
	SubscriptionState   string     `json:"subscriptionState"`
	StartTime           time.Time  `json:"startTime"`
	LinkedPurchaseToken string     `json:"linkedPurchaseToken,omitempty"`
	LineItems           []LineItem `json:"lineItems"`
}

type LineItem struct {
	ProductID        string            `json:"productId"`
	ExpiryTime       *time.Time        `json:"expiryTime,omitempty"`
	AutoRenewingPlan *AutoRenewingPlan `json:"autoRenewingPlan,omitempty"`
	OfferDetails     *OfferDetails     `json:"offerDetails,omitempty"`
}

type AutoRenewingPlan struct {
	AutoRenewEnabled bool   `json:"autoRenewEnabled"`
	RecurringPrice   *Money `json:"recurringPrice,omitempty"`
}

type OfferDetails struct {
	BasePlanID string   `json:"basePlanId"`
	OfferID    string   `json:"offerId,omitempty"`
	OfferTags  []string `json:"offerTags,omitempty"`
}

// Money follows the upstream wire shape, where units arrive as a decimal
// string.
type Money struct {
	CurrencyCode string `json:"currencyCode"`
	Units        int64  `json:"units,string"`
	Nanos        int32  `json:"nanos"`
}

// Micros converts to micro-units of the currency.
func (m Money) Micros() int64 {
	return m.Units*1_000_000 + int64(m.Nanos)/1_000
}

// PurchaseDetail is the normalized ground truth the reconciliation pipeline
// applies. It is derived from RawSubscription, never from notification content.
type PurchaseDetail struct {
	PurchaseToken       string
	ProductID           string
	SubscriptionState   string
	IsTrial             bool
	PriceMicros         int64
	Currency            string
	AutoRenewing        bool
	LinkedPurchaseToken string
	TrialStart          *time.Time
	TrialEnd            *time.Time
	SubscriptionStart   time.Time
	SubscriptionEnd     *time.Time
}

// Client speaks to the billing platform's subscription-state API.
type Client interface {
	GetSubscription(ctx context.Context, purchaseToken string) (*RawSubscription, error)
}

// Fetcher maps the upstream resource into a PurchaseDetail, or fails. It never
// returns a partially populated or guessed result.
type Fetcher interface {
	Fetch(ctx context.Context, purchaseToken string) (PurchaseDetail, error)
}

var (
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
	ErrPurchaseNotFound    = errors.New("purchase_not_found")
	ErrIncompleteResource  = errors.New("incomplete_resource")
	ErrInvalidPrice        = errors.New("invalid_price")
)
