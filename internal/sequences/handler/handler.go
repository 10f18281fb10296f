package handler

import (
	"net/http"

	"realty_crm_backend/internal/sequences/service"
	"realty_crm_backend/internal/sequences/transport"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts sequence authoring on sequences and enrollment
// management on enrollments. leads receives the per-lead enrollment view.
func (h *Handler) RegisterRoutes(sequences, enrollments, leads *gin.RouterGroup) {
	sequences.GET("", h.ListSequences)
	sequences.POST("", h.CreateSequence)
	sequences.POST("/process", h.ProcessNow)
	sequences.GET("/:id", h.GetSequence)
	sequences.PUT("/:id", h.UpdateSequence)
	sequences.DELETE("/:id", h.DeleteSequence)
	sequences.POST("/:id/steps", h.AddStep)
	sequences.PATCH("/:id/steps/:stepId", h.UpdateStep)
	sequences.POST("/:id/enrollments", h.Enroll)
	sequences.GET("/:id/enrollments", h.ListEnrollments)

	enrollments.GET("/:id", h.GetEnrollment)
	enrollments.POST("/:id/pause", h.Pause)
	enrollments.POST("/:id/resume", h.Resume)
	enrollments.POST("/:id/cancel", h.Cancel)
	enrollments.GET("/:id/logs", h.ListExecutionLogs)

	leads.GET("/:id/enrollments", h.ListLeadEnrollments)
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func (h *Handler) CreateSequence(c *gin.Context) {
	var req transport.CreateSequenceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.svc.CreateSequence(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) ListSequences(c *gin.Context) {
	var q transport.ListSequencesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.svc.ListSequences(c.Request.Context(), q.ActiveOnly)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) GetSequence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.GetSequence(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) UpdateSequence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.UpdateSequenceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	seq, err := h.svc.UpdateSequence(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, seq)
}

func (h *Handler) DeleteSequence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.DeleteSequence(c.Request.Context(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.StepRequest
	if !h.bindJSON(c, &req) {
		return
	}

	step, err := h.svc.AddStep(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, step)
}

func (h *Handler) UpdateStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stepID, ok := parseID(c, "stepId")
	if !ok {
		return
	}
	var req transport.UpdateStepRequest
	if !h.bindJSON(c, &req) {
		return
	}

	step, err := h.svc.UpdateStep(c.Request.Context(), id, stepID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, step)
}

func (h *Handler) Enroll(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.EnrollRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.svc.Enroll(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if result.Enrolled {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, result)
}

func (h *Handler) ListEnrollments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var q transport.ListEnrollmentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ListEnrollments(c.Request.Context(), id, q)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) ProcessNow(c *gin.Context) {
	var req transport.ProcessRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}

	result, err := h.svc.ProcessNow(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) GetEnrollment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	en, err := h.svc.GetEnrollment(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, en)
}

func (h *Handler) Pause(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	en, err := h.svc.Pause(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, en)
}

func (h *Handler) Resume(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	en, err := h.svc.Resume(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, en)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	en, err := h.svc.Cancel(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, en)
}

func (h *Handler) ListExecutionLogs(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ListExecutionLogs(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) ListLeadEnrollments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ListLeadEnrollments(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
