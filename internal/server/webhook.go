package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleBillingWebhook receives push deliveries from the billing platform.
// It acknowledges with 200 no matter what happens downstream: the platform
// retries non-2xx responses indefinitely, and redelivering a payload this
// service cannot parse or use is not recovery, just noise.
//
// @Summary      Billing webhook receiver
// @Tags         billing
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /v1/billing/webhook [post]
func (s *Server) HandleBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.Warn("webhook body read failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	}

	if err := s.webhookSvc.Ingest(c.Request.Context(), payload); err != nil {
		s.log.Warn("webhook delivery not processed",
			zap.Int("payload_size", len(payload)),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}
