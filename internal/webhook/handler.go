package webhook

import (
	"context"
	"net/http"

	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/leads/transport"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// LeadService is the lead intake surface the n8n endpoints drive.
type LeadService interface {
	Intake(ctx context.Context, req transport.CreateLeadRequest, origin string) (leaddomain.Lead, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (leaddomain.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req transport.UpdateStatusRequest, origin string) (transport.StatusChangeResponse, error)
	LogActivity(ctx context.Context, id uuid.UUID, req transport.LogActivityRequest, actorID *uuid.UUID) (leaddomain.Activity, error)
	ListForProcessing(ctx context.Context, q transport.ProcessingQuery) (transport.ProcessingResponse, error)
}

// Handler serves the n8n automation endpoints.
type Handler struct {
	leads LeadService
	val   *validator.Validator
	log   *logger.Logger
}

func NewHandler(leads LeadService, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{leads: leads, val: val, log: log}
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusUnprocessableEntity, msgValidationFailed, err.Error())
		return false
	}
	return true
}

// HandleCreateLead creates a lead, or reports the existing one when the
// external id was seen before.
func (h *Handler) HandleCreateLead(c *gin.Context) {
	var payload CreateLeadPayload
	if !h.bind(c, &payload) {
		return
	}

	lead, created, err := h.leads.Intake(c.Request.Context(), payload.toRequest(), transport.OriginN8N)
	if httpkit.HandleError(c, err) {
		return
	}

	if !created {
		h.log.Info("n8n webhook: duplicate lead skipped", "external_id", payload.ExternalID, "lead_id", lead.ID)
		httpkit.OK(c, Envelope{
			Message: "Lead already exists",
			Data:    gin.H{"id": lead.ID, "duplicate": true},
		})
		return
	}

	h.log.Info("n8n webhook: lead created", "lead_id", lead.ID, "source", payload.Source, "workflow_id", payload.WorkflowID)
	httpkit.JSON(c, http.StatusCreated, Envelope{
		Message: "Lead created successfully",
		Data:    gin.H{"id": lead.ID, "score": lead.Score},
	})
}

func (h *Handler) HandleUpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload StatusPayload
	if !h.bind(c, &payload) {
		return
	}

	res, err := h.leads.UpdateStatus(c.Request.Context(), id, transport.UpdateStatusRequest{
		Status: payload.Status,
		Reason: payload.Reason,
	}, transport.OriginN8N)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, Envelope{
		Message: "Lead status updated",
		Data: gin.H{
			"id":         id,
			"old_status": res.PreviousStatus,
			"new_status": res.Lead.Status,
		},
	})
}

func (h *Handler) HandleLogActivity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload ActivityPayload
	if !h.bind(c, &payload) {
		return
	}

	activity, err := h.leads.LogActivity(c.Request.Context(), id, payload.toRequest(), nil)
	if httpkit.HandleError(c, err) {
		return
	}
	lead, err := h.leads.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, Envelope{
		Message: "Activity logged successfully",
		Data: gin.H{
			"activity_id": activity.ID,
			"lead_score":  lead.Score,
		},
	})
}

func (h *Handler) HandleListForProcessing(c *gin.Context) {
	var q transport.ProcessingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusUnprocessableEntity, msgValidationFailed, err.Error())
		return
	}

	res, err := h.leads.ListForProcessing(c.Request.Context(), q)
	if httpkit.HandleError(c, err) {
		return
	}
	count := res.Count
	httpkit.OK(c, Envelope{Data: res.Leads, Count: &count})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
