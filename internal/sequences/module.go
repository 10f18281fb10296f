// Package sequences provides the lead automation bounded context: sequence
// authoring, enrollment management and the engine that runs due steps.
package sequences

import (
	"context"

	"realty_crm_backend/internal/adapters"
	"realty_crm_backend/internal/events"
	apphttp "realty_crm_backend/internal/http"
	"realty_crm_backend/internal/leads"
	"realty_crm_backend/internal/leads/transport"
	"realty_crm_backend/internal/messaging"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/engine"
	"realty_crm_backend/internal/sequences/handler"
	"realty_crm_backend/internal/sequences/repository"
	"realty_crm_backend/internal/sequences/service"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/db"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/metrics"
	"realty_crm_backend/platform/validator"
)

// Module is the sequences bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	engine  *engine.Engine
	log     *logger.Logger
}

// NewModule wires the engine over the shared Postgres connection. generator
// may be nil when message generation is not configured.
func NewModule(conn db.DBTX, leadsModule *leads.Module, eventBus events.Bus, val *validator.Validator, generator *messaging.Generator, cfg config.SequenceConfig, m *metrics.Metrics, log *logger.Logger) *Module {
	repo := repository.New(conn)
	store := adapters.NewEngineStore(conn, leadsModule.Repository(), repo)

	var messages engine.MessageGenerator
	if generator != nil {
		messages = generator
	}

	eng := engine.New(store, leadsModule.Scorer(), messages, eventBus, m, log.WithComponent("sequence-engine"), engine.Options{
		BatchLimit:  cfg.GetSequenceBatchLimit(),
		ClaimLease:  cfg.GetSequenceClaimLease(),
		CallTimeout: cfg.GetExternalCallTimeout(),
	})
	svc := service.New(service.NewPostgresStore(conn, repo), leadsModule.Repository(), eng, log.WithComponent("sequences"))

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		engine:  eng,
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sequences"
}

// Engine exposes the automation engine to the scheduler.
func (m *Module) Engine() *engine.Engine {
	return m.engine
}

// Service exposes authoring to the sequence importer.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts sequence routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(
		ctx.V1.Group("/sequences"),
		ctx.V1.Group("/enrollments"),
		ctx.V1.Group("/leads"),
	)
}

// RegisterHandlers subscribes the engine to lead lifecycle events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.LeadStatusChanged{}.EventName(), m)
}

// Handle routes events to auto-enrollment for the matching trigger.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		return m.autoEnroll(ctx, e.LeadID.String(), func() ([]string, error) {
			return m.engine.AutoEnrollLead(ctx, e.LeadID, domain.TriggerNewLead)
		})
	case events.LeadStatusChanged:
		// Status changes made by a step must not re-trigger sequences.
		if e.Origin == transport.OriginSequence {
			return nil
		}
		return m.autoEnroll(ctx, e.LeadID.String(), func() ([]string, error) {
			return m.engine.AutoEnrollLead(ctx, e.LeadID, domain.TriggerStatusChange)
		})
	default:
		return nil
	}
}

func (m *Module) autoEnroll(ctx context.Context, leadID string, run func() ([]string, error)) error {
	names, err := run()
	if len(names) > 0 {
		m.log.WithContext(ctx).Info("lead auto-enrolled", "lead_id", leadID, "sequences", names)
	}
	return err
}

var (
	_ apphttp.Module = (*Module)(nil)
	_ events.Handler = (*Module)(nil)
)
