package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"eeg-decoder-service/internal/core/services"
)

func (h *Handler) GetKindMetrics(c *gin.Context) {
	from, to, step := parseTimeRange(c)

	metrics, err := h.metricsSvc.GetKindMetrics(c.Request.Context(), services.KindMetricsRequest{
		Kind: c.Param("kind"),
		From: from,
		To:   to,
		Step: step,
	})
	if err != nil {
		log.WithError(err).Error("get decoder kind metrics failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// parseTimeRange leaves unparsable or missing values zero so the service
// applies its defaults.
func parseTimeRange(c *gin.Context) (from, to time.Time, step time.Duration) {
	if fromStr := c.Query("from"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			from = parsed
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			to = parsed
		}
	}
	if stepStr := c.Query("step"); stepStr != "" {
		if parsed, err := time.ParseDuration(stepStr); err == nil {
			step = parsed
		}
	}
	return from, to, step
}
