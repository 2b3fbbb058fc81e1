package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"eeg-decoder-service/internal/adapters/primary/http/dto"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
	"eeg-decoder-service/internal/core/services"
	"eeg-decoder-service/internal/recording"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) ListDecoders(c *gin.Context) {
	projectID, err := getProjectID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingProjectID.Error()})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := ports.DecoderListFilter{
		ProjectID: projectID,
		Kind:      c.Query("kind"),
		State:     c.Query("state"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		Order:     c.Query("order"),
		Limit:     limit,
		Offset:    offset,
	}

	decoders, total, err := h.decoderSvc.List(c.Request.Context(), filter)
	if err != nil {
		log.WithError(err).Error("list decoders failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.DecoderResponse, 0, len(decoders))
	for _, d := range decoders {
		items = append(items, dto.ToDecoderResponse(d))
	}

	c.JSON(http.StatusOK, dto.ListDecodersResponse{
		Items:      items,
		Total:      total,
		PageSize:   filter.Limit,
		NextOffset: offset + len(items),
	})
}

func (h *Handler) GetDecoder(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid decoder id")
	if !ok {
		return
	}

	d, err := h.decoderSvc.Get(c.Request.Context(), projectID, id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDecoderResponse(d))
}

func (h *Handler) TrainDecoder(c *gin.Context) {
	projectID, err := getProjectID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingProjectID.Error()})
		return
	}

	var req dto.TrainDecoderRequest
	if !h.bindJSON(c, &req) {
		return
	}

	kind, err := domain.ParseDecoderKind(req.Kind)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	rec := req.Recording.ToDomain()
	pipelineCfg := domain.DefaultPipelineConfig(rec.Montage.SampleRate)
	if req.Pipeline != nil {
		pipelineCfg = *req.Pipeline
	}

	d, err := h.decoderSvc.Train(c.Request.Context(), projectID, services.TrainRequest{
		Name:        req.Name,
		Description: req.Description,
		Kind:        kind,
		Pipeline:    pipelineCfg,
		Classes:     req.Classes,
		Options:     req.Options,
		Labels:      req.Labels,
		Recording:   rec,
	})
	if err != nil {
		log.WithError(err).Error("train decoder failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToDecoderResponse(d))
}

func (h *Handler) ImportDecoder(c *gin.Context) {
	projectID, err := getProjectID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingProjectID.Error()})
		return
	}

	var req dto.ImportDecoderRequest
	if !h.bindJSON(c, &req) {
		return
	}

	pipelineCfg := domain.DefaultPipelineConfig(req.Montage.SampleRate)
	if req.Pipeline != nil {
		pipelineCfg = *req.Pipeline
	}

	d, err := h.decoderSvc.Import(c.Request.Context(), projectID, services.ImportRequest{
		Name:        req.Name,
		Description: req.Description,
		Montage:     req.Montage,
		Pipeline:    pipelineCfg,
		Classes:     req.Classes,
		Artifact:    req.Artifact,
		Weights:     req.Weights,
		Labels:      req.Labels,
	})
	if err != nil {
		log.WithError(err).Error("import decoder failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToDecoderResponse(d))
}

func (h *Handler) UpdateDecoder(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid decoder id")
	if !ok {
		return
	}

	var req dto.UpdateDecoderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.State != nil {
		updates["state"] = *req.State
	}
	if req.Labels != nil {
		updates["labels"] = req.Labels
	}

	d, err := h.decoderSvc.Update(c.Request.Context(), projectID, id, updates)
	if err != nil {
		log.WithError(err).Error("update decoder failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDecoderResponse(d))
}

func (h *Handler) DeleteDecoder(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid decoder id")
	if !ok {
		return
	}

	if err := h.decoderSvc.Delete(c.Request.Context(), projectID, id); err != nil {
		log.WithError(err).Error("delete decoder failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) PublishDecoder(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid decoder id")
	if !ok {
		return
	}

	pub, err := h.decoderSvc.Publish(c.Request.Context(), projectID, id)
	if err != nil {
		log.WithError(err).Error("publish decoder failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PublishDecoderResponse{
		DecoderID: id,
		Namespace: pub.Namespace,
		Name:      pub.Name,
		UID:       pub.UID,
	})
}

// EvaluateDecoder scores a decoder on a labeled recording sent either as
// JSON or as text/csv in the recording file format.
func (h *Handler) EvaluateDecoder(c *gin.Context) {
	projectID, id, ok := projectAndID(c, "invalid decoder id")
	if !ok {
		return
	}

	d, err := h.decoderSvc.Get(c.Request.Context(), projectID, id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	var rec *domain.Recording
	if strings.HasPrefix(c.ContentType(), "text/csv") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
		rec, err = recording.ReadCSV(c.Request.Body, d.Montage.SampleRate, d.Montage.EOGChannels)
		if err != nil {
			if !tooLarge(c, err) {
				mapDomainError(c, err)
			}
			return
		}
	} else {
		var req dto.EvaluateDecoderRequest
		if !h.bindJSON(c, &req) {
			return
		}
		rec = req.Recording.ToDomain()
		if len(rec.Montage.Channels) == 0 {
			rec.Montage = d.Montage
		}
	}

	report, err := h.decoderSvc.Evaluate(c.Request.Context(), projectID, id, rec)
	if err != nil {
		log.WithError(err).Error("evaluate decoder failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// bindJSON decodes a size-limited JSON body, writing the error response
// itself when it fails.
func (h *Handler) bindJSON(c *gin.Context, obj any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.ShouldBindJSON(obj); err != nil {
		if !tooLarge(c, err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return false
	}
	return true
}

func tooLarge(c *gin.Context, err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return true
	}
	return false
}

func projectAndID(c *gin.Context, invalidMsg string) (uuid.UUID, uuid.UUID, bool) {
	projectID, err := getProjectID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingProjectID.Error()})
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidMsg})
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, id, true
}

func getProjectID(c *gin.Context) (uuid.UUID, error) {
	header := c.GetHeader("Project-ID")
	if header == "" {
		return uuid.Nil, domain.ErrMissingProjectID
	}
	return uuid.Parse(header)
}
