package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/famlyhq/famly/internal/billing/domain"
	"github.com/famlyhq/famly/internal/clock"
	"github.com/famlyhq/famly/internal/config"
	"github.com/famlyhq/famly/internal/observability"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"github.com/famlyhq/famly/internal/reconcile/repository"
	"github.com/famlyhq/famly/internal/reconcile/webhook"
	userdomain "github.com/famlyhq/famly/internal/user/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type reconcilerStub struct {
	verifyErr error
	verified  []reconciledomain.VerifyRequest
}

func (r *reconcilerStub) ProcessNotification(ctx context.Context, n *reconciledomain.Notification) (bool, error) {
	return false, nil
}

func (r *reconcilerStub) VerifyPurchase(ctx context.Context, req reconciledomain.VerifyRequest) (reconciledomain.SubscriptionSnapshot, error) {
	r.verified = append(r.verified, req)
	if r.verifyErr != nil {
		return reconciledomain.SubscriptionSnapshot{}, r.verifyErr
	}
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return reconciledomain.SubscriptionSnapshot{
		Status:          "SUBSCRIPTION_STATE_ACTIVE",
		AutoRenewing:    true,
		SubscriptionEnd: &end,
	}, nil
}

func (r *reconcilerStub) Sweep(ctx context.Context) (reconciledomain.SweepResult, error) {
	return reconciledomain.SweepResult{}, nil
}

type userRepoStub struct {
	byHash map[string]*userdomain.User
}

func (u *userRepoStub) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	return nil, nil
}

func (u *userRepoStub) FindByAPITokenHash(ctx context.Context, db *gorm.DB, hash string) (*userdomain.User, error) {
	return u.byHash[hash], nil
}

func (u *userRepoStub) UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update userdomain.SubscriptionUpdate) error {
	return nil
}

const testAPIToken = "famly-test-token"

var testDBSeq atomic.Int64

func newTestServer(t *testing.T) (*Server, *reconcilerStub) {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&reconciledomain.WebhookDelivery{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	reconciler := &reconcilerStub{}
	metrics := observability.NewMetrics()
	webhookSvc := webhook.NewService(webhook.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.New(),
		Metrics: metrics,

		Pipeline:     reconciler,
		DeliveryRepo: repository.ProvideDeliveries(),
	})

	users := &userRepoStub{byHash: map[string]*userdomain.User{
		HashToken(testAPIToken): {ID: 42, Email: "member@famly.app"},
	}}

	s := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Cfg:     config.Config{Environment: "test"},
		Metrics: metrics,

		WebhookSvc: webhookSvc,
		Reconciler: reconciler,
		UserRepo:   users,
	})
	return s, reconciler
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	s, _ := newTestServer(t)

	for _, body := range []string{
		`{"message":{"data":"bm90IGpzb24="}}`,
		`total garbage`,
		``,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", bytes.NewBufferString(body))
		rec := doRequest(s, req)

		assert.Equal(t, http.StatusOK, rec.Code, "payload %q", body)
		assert.JSONEq(t, `{"status":"acknowledged"}`, rec.Body.String())
	}
}

func TestVerifyRequiresBearerToken(t *testing.T) {
	s, reconciler := newTestServer(t)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer wrong-token"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/purchases/verify",
			bytes.NewBufferString(`{"purchase_token":"tokX","platform":"google_play"}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := doRequest(s, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
	assert.Empty(t, reconciler.verified)
}

func TestVerifyReturnsSnapshot(t *testing.T) {
	s, reconciler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/purchases/verify",
		bytes.NewBufferString(`{"purchase_token":" tokX ","platform":"google_play","product_id":"famly.premium.monthly"}`))
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	rec := doRequest(s, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data reconciledomain.SubscriptionSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SUBSCRIPTION_STATE_ACTIVE", body.Data.Status)
	assert.True(t, body.Data.AutoRenewing)

	require.Len(t, reconciler.verified, 1)
	assert.Equal(t, snowflake.ID(42), reconciler.verified[0].UserID)
	assert.Equal(t, "tokX", reconciler.verified[0].PurchaseToken, "token is trimmed before verification")
}

func TestVerifyMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"upstream unavailable", billingdomain.ErrUpstreamUnavailable, http.StatusBadGateway},
		{"purchase not found", billingdomain.ErrPurchaseNotFound, http.StatusNotFound},
		{"invalid platform", reconciledomain.ErrInvalidPlatform, http.StatusBadRequest},
		{"invalid price", billingdomain.ErrInvalidPrice, http.StatusBadGateway},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, reconciler := newTestServer(t)
			reconciler.verifyErr = tc.err

			req := httptest.NewRequest(http.MethodPost, "/v1/purchases/verify",
				bytes.NewBufferString(`{"purchase_token":"tokX","platform":"google_play"}`))
			req.Header.Set("Authorization", "Bearer "+testAPIToken)
			rec := doRequest(s, req)

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestVerifyRejectsMalformedBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/purchases/verify", bytes.NewBufferString(`{`))
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	rec := doRequest(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
