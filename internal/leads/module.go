// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"realty_crm_backend/internal/events"
	apphttp "realty_crm_backend/internal/http"
	"realty_crm_backend/internal/leads/handler"
	"realty_crm_backend/internal/leads/repository"
	"realty_crm_backend/internal/leads/scoring"
	"realty_crm_backend/internal/leads/service"
	"realty_crm_backend/internal/messaging"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/db"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/metrics"
	"realty_crm_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
	scorer  *scoring.Service
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(conn db.DBTX, eventBus events.Bus, val *validator.Validator, generator *messaging.Generator, cfg config.LeadIntakeConfig, m *metrics.Metrics, log *logger.Logger) *Module {
	repo := repository.New(conn)
	scorer := scoring.New(log.WithComponent("scoring"), m)
	svc := service.New(repo, scorer, eventBus, generator, cfg.GetPhoneDefaultRegion(), log.WithComponent("leads"))

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
		scorer:  scorer,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service exposes lead intake to other modules (n8n webhooks).
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes lead persistence for the sequence engine adapter.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Scorer exposes the shared scoring service.
func (m *Module) Scorer() *scoring.Service {
	return m.scorer
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/leads"))
}

var _ apphttp.Module = (*Module)(nil)
