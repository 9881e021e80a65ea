package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Notification is the decoded lifecycle event handed to the pipeline by the
// webhook boundary or replayed from the pending queue. Raw holds the inner
// event exactly as delivered.
type Notification struct {
	Version          string
	PackageName      string
	EventTimeMS      int64
	PurchaseToken    string
	SubscriptionID   string
	NotificationType int
	Raw              []byte
}

type VerifyRequest struct {
	UserID        snowflake.ID
	PurchaseToken string
	Platform      string
	ProductID     string
}

// SubscriptionSnapshot is what the verify endpoint returns to the app client.
type SubscriptionSnapshot struct {
	Status          string     `json:"status"`
	IsTrial         bool       `json:"is_trial"`
	AutoRenewing    bool       `json:"auto_renewing"`
	TrialStartDate  *time.Time `json:"trial_start_date,omitempty"`
	TrialEndDate    *time.Time `json:"trial_end_date,omitempty"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
}

type SweepResult struct {
	Listed     int
	Unresolved int
	Processed  int
	Retained   int
	Failed     int
}

type Service interface {
	// ProcessNotification runs the resolve → fetch → ledger → apply pipeline
	// for one decoded event. queued reports that the user was unknown and the
	// event was parked instead of applied. Errors are for the trigger to log;
	// the transport boundary still acknowledges.
	ProcessNotification(ctx context.Context, n *Notification) (queued bool, err error)

	// VerifyPurchase is the synchronous client-initiated path. It establishes
	// the token→user link, applies current state, drains the token's pending
	// entries, and returns the resulting snapshot. Failures propagate.
	VerifyPurchase(ctx context.Context, req VerifyRequest) (SubscriptionSnapshot, error)

	// Sweep retries every queued notification once. Unresolved entries stay
	// queued; resolved entries are consumed unless the upstream fetch failed.
	Sweep(ctx context.Context) (SweepResult, error)
}

var (
	ErrMissingToken     = errors.New("missing_purchase_token")
	ErrMissingEventTime = errors.New("missing_event_time")
	ErrInvalidPlatform  = errors.New("invalid_platform")
	ErrAlreadyRecorded  = errors.New("already_recorded")
)
