package server

import (
	"errors"
	"net/http"

	billingdomain "github.com/famlyhq/famly/internal/billing/domain"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	userdomain "github.com/famlyhq/famly/internal/user/domain"
	"github.com/gin-gonic/gin"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

type apiError struct {
	status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AbortWithError maps domain sentinels to definite HTTP failures. The verify
// path never reports an ambiguous success: anything not mapped is a 500.
func AbortWithError(c *gin.Context, err error) {
	e := classify(err)
	c.AbortWithStatusJSON(e.status, gin.H{"error": e})
}

func classify(err error) apiError {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return apiError{http.StatusUnauthorized, "unauthorized", "missing or invalid credentials"}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, reconciledomain.ErrMissingToken),
		errors.Is(err, reconciledomain.ErrInvalidPlatform):
		return apiError{http.StatusBadRequest, "invalid_request", err.Error()}
	case errors.Is(err, billingdomain.ErrPurchaseNotFound):
		return apiError{http.StatusNotFound, "purchase_not_found", "purchase token is unknown to the billing platform"}
	case errors.Is(err, userdomain.ErrUserNotFound):
		return apiError{http.StatusNotFound, "user_not_found", "user record no longer exists"}
	case errors.Is(err, billingdomain.ErrUpstreamUnavailable):
		return apiError{http.StatusBadGateway, "upstream_unavailable", "billing platform did not answer"}
	case errors.Is(err, billingdomain.ErrInvalidPrice),
		errors.Is(err, billingdomain.ErrIncompleteResource):
		return apiError{http.StatusBadGateway, "upstream_data_invalid", "billing platform returned an unusable purchase resource"}
	default:
		return apiError{http.StatusInternalServerError, "internal_error", "internal error"}
	}
}
