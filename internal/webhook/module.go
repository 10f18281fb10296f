// Package webhook provides the n8n automation endpoints: lead intake, status
// updates, activity logging and the processing feed.
package webhook

import (
	apphttp "realty_crm_backend/internal/http"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"golang.org/x/time/rate"
)

// SecretHeader carries the shared secret configured in n8n.
const SecretHeader = "X-N8N-Webhook-Secret"

const (
	requestsPerSecond = 5
	burst             = 20
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	secret  string
	limiter *httpkit.IPRateLimiter
}

// NewModule creates the n8n webhook module. An empty secret disables the
// shared secret check.
func NewModule(leads LeadService, val *validator.Validator, cfg config.WebhookConfig, log *logger.Logger) *Module {
	log = log.WithComponent("n8n-webhook")
	return &Module{
		handler: NewHandler(leads, val, log),
		secret:  cfg.GetN8NWebhookSecret(),
		limiter: httpkit.NewIPRateLimiter(rate.Limit(requestsPerSecond), burst, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	n8n := ctx.Webhooks.Group("/n8n")
	n8n.Use(m.limiter.RateLimit(), httpkit.SharedSecret(SecretHeader, m.secret))

	n8n.POST("/leads", m.handler.HandleCreateLead)
	n8n.GET("/leads/process", m.handler.HandleListForProcessing)
	n8n.POST("/leads/:id/status", m.handler.HandleUpdateStatus)
	n8n.POST("/leads/:id/activity", m.handler.HandleLogActivity)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
