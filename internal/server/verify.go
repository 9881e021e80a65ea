package server

import (
	"strings"

	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"github.com/gin-gonic/gin"
)

type verifyPurchaseRequest struct {
	PurchaseToken string `json:"purchase_token"`
	Platform      string `json:"platform"`
	ProductID     string `json:"product_id"`
}

// VerifyPurchase is the synchronous client-initiated path. Unlike the webhook
// receiver, failures here propagate: a person is waiting on the purchase
// outcome and must never see a false success.
//
// @Summary      Verify a purchase and apply its subscription state
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body verifyPurchaseRequest true "Verify Purchase Request"
// @Success      200  {object}  map[string]any
// @Router       /v1/purchases/verify [post]
func (s *Server) VerifyPurchase(c *gin.Context) {
	var req verifyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	snapshot, err := s.reconciler.VerifyPurchase(c.Request.Context(), reconciledomain.VerifyRequest{
		UserID:        userID,
		PurchaseToken: strings.TrimSpace(req.PurchaseToken),
		Platform:      strings.TrimSpace(req.Platform),
		ProductID:     strings.TrimSpace(req.ProductID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, snapshot)
}
