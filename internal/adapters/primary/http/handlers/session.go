package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"eeg-decoder-service/internal/adapters/primary/http/dto"
	"eeg-decoder-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// streamHeartbeat keeps idle SSE connections open through proxies.
var streamHeartbeat = 15 * time.Second

func (h *Handler) StartSession(c *gin.Context) {
	projectID, err := getProjectID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingProjectID.Error()})
		return
	}

	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessionSvc.Start(c.Request.Context(), projectID, req.DecoderID)
	if err != nil {
		log.WithError(err).Error("start session failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToSessionResponse(s))
}

func (h *Handler) GetSession(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid session id")
	if !ok {
		return
	}

	s, err := h.sessionSvc.Get(c.Request.Context(), projectID, id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToSessionResponse(s))
}

// PushSamples queues blocks on a live session. Blocks before the first
// failure stay queued and are reported as accepted.
func (h *Handler) PushSamples(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid session id")
	if !ok {
		return
	}

	var req dto.PushSamplesRequest
	if !h.bindJSON(c, &req) {
		return
	}

	accepted, err := h.sessionSvc.Push(c.Request.Context(), projectID, id, req.ToBlocks(time.Now()))
	if err != nil {
		log.WithFields(log.Fields{
			"session_id": id,
			"accepted":   accepted,
			"submitted":  len(req.Blocks),
		}).WithError(err).Warn("push samples failed")
		c.Header("X-Accepted-Blocks", strconv.Itoa(accepted))
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.PushSamplesResponse{Accepted: accepted})
}

func (h *Handler) ListPredictions(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid session id")
	if !ok {
		return
	}

	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	preds, err := h.sessionSvc.Predictions(c.Request.Context(), projectID, id, after, limit)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToListPredictionsResponse(preds, after))
}

// StreamPredictions relays live predictions as server-sent events until
// the session stops or the client goes away.
func (h *Handler) StreamPredictions(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid session id")
	if !ok {
		return
	}

	ch, cancel, err := h.sessionSvc.Subscribe(c.Request.Context(), projectID, id)
	if err != nil {
		mapDomainError(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case p, open := <-ch:
			if !open {
				c.SSEvent("end", gin.H{"session_id": id, "state": domain.SessionStateStopped})
				return false
			}
			c.SSEvent("prediction", dto.ToPredictionResponse(p))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) StopSession(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid session id")
	if !ok {
		return
	}

	s, err := h.sessionSvc.Stop(c.Request.Context(), projectID, id)
	if err != nil {
		log.WithError(err).Error("stop session failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToSessionResponse(s))
}
