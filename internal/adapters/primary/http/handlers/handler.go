package handlers

import (
	"eeg-decoder-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	decoderSvc *services.DecoderService
	sessionSvc *services.SessionService
	metricsSvc *services.MetricsService

	// maxUploadBytes caps recording and sample request bodies.
	maxUploadBytes int64
}

func New(
	decoderSvc *services.DecoderService,
	sessionSvc *services.SessionService,
	metricsSvc *services.MetricsService,
	maxUploadBytes int64,
) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &Handler{
		decoderSvc:     decoderSvc,
		sessionSvc:     sessionSvc,
		metricsSvc:     metricsSvc,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Decoders
	r.GET("/decoders", h.ListDecoders)
	r.GET("/decoders/:id", h.GetDecoder)
	r.POST("/decoders/train", h.TrainDecoder)
	r.POST("/decoders/import", h.ImportDecoder)
	r.PATCH("/decoders/:id", h.UpdateDecoder)
	r.DELETE("/decoders/:id", h.DeleteDecoder)
	r.POST("/decoders/:id/publish", h.PublishDecoder)
	r.POST("/decoders/:id/evaluate", h.EvaluateDecoder)

	// Sessions
	r.POST("/sessions", h.StartSession)
	r.GET("/sessions/:id", h.GetSession)
	r.POST("/sessions/:id/samples", h.PushSamples)
	r.GET("/sessions/:id/predictions", h.ListPredictions)
	r.GET("/sessions/:id/stream", h.StreamPredictions)
	r.DELETE("/sessions/:id", h.StopSession)

	// Metrics
	r.GET("/metrics/decoders/:kind", h.GetKindMetrics)
}
