package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apphttp "realty_crm_backend/internal/http"
	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/leads/transport"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubWebhookConfig struct{ secret string }

func (s stubWebhookConfig) GetN8NWebhookSecret() string { return s.secret }

type fakeLeads struct {
	leads      map[uuid.UUID]leaddomain.Lead
	byExternal map[string]uuid.UUID

	lastIntake   transport.CreateLeadRequest
	lastOrigin   string
	lastActivity transport.LogActivityRequest
	lastQuery    transport.ProcessingQuery
}

func newFakeLeads() *fakeLeads {
	return &fakeLeads{
		leads:      map[uuid.UUID]leaddomain.Lead{},
		byExternal: map[string]uuid.UUID{},
	}
}

func (f *fakeLeads) Intake(_ context.Context, req transport.CreateLeadRequest, origin string) (leaddomain.Lead, bool, error) {
	f.lastIntake = req
	f.lastOrigin = origin
	if id, ok := f.byExternal[req.ExternalID]; ok && req.ExternalID != "" {
		return f.leads[id], false, nil
	}
	lead := leaddomain.Lead{ID: uuid.New(), Name: req.Name, Status: leaddomain.StatusNew, Score: 35}
	f.leads[lead.ID] = lead
	if req.ExternalID != "" {
		f.byExternal[req.ExternalID] = lead.ID
	}
	return lead, true, nil
}

func (f *fakeLeads) GetByID(_ context.Context, id uuid.UUID) (leaddomain.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return leaddomain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (f *fakeLeads) UpdateStatus(_ context.Context, id uuid.UUID, req transport.UpdateStatusRequest, origin string) (transport.StatusChangeResponse, error) {
	lead, ok := f.leads[id]
	if !ok {
		return transport.StatusChangeResponse{}, apperr.NotFound("lead not found")
	}
	f.lastOrigin = origin
	previous := lead.Status
	lead.Status = leaddomain.Status(req.Status)
	f.leads[id] = lead
	return transport.StatusChangeResponse{Lead: lead, PreviousStatus: string(previous)}, nil
}

func (f *fakeLeads) LogActivity(_ context.Context, id uuid.UUID, req transport.LogActivityRequest, _ *uuid.UUID) (leaddomain.Activity, error) {
	lead, ok := f.leads[id]
	if !ok {
		return leaddomain.Activity{}, apperr.NotFound("lead not found")
	}
	f.lastActivity = req
	lead.Score += 5
	f.leads[id] = lead
	return leaddomain.Activity{ID: uuid.New(), LeadID: id}, nil
}

func (f *fakeLeads) ListForProcessing(_ context.Context, q transport.ProcessingQuery) (transport.ProcessingResponse, error) {
	f.lastQuery = q
	out := make([]leaddomain.Lead, 0, len(f.leads))
	for _, l := range f.leads {
		out = append(out, l)
	}
	return transport.ProcessingResponse{Count: len(out), Leads: out}, nil
}

func newTestRouter(leads LeadService, secret string) *gin.Engine {
	engine := gin.New()
	mod := NewModule(leads, validator.New(), stubWebhookConfig{secret: secret}, logger.Nop())
	mod.RegisterRoutes(&apphttp.RouterContext{Engine: engine, Webhooks: engine.Group("/webhooks")})
	return engine
}

func do(engine *gin.Engine, method, path, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestCreateLeadRequiresSecret(t *testing.T) {
	engine := newTestRouter(newFakeLeads(), "s3cret")

	rec := do(engine, http.MethodPost, "/webhooks/n8n/leads", `{"name":"Ana","source":"instagram"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateLeadThenDuplicate(t *testing.T) {
	leads := newFakeLeads()
	engine := newTestRouter(leads, "s3cret")
	body := `{"name":"Ana Ruiz","source":"instagram","budget_min":150000,"external_id":"ig-42","workflow_id":"wf-7","notes":"asked about Marbella"}`

	rec := do(engine, http.MethodPost, "/webhooks/n8n/leads", body, "s3cret")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["message"] != "Lead created successfully" {
		t.Fatalf("unexpected message %v", out["message"])
	}
	data := out["data"].(map[string]any)
	if data["score"] != float64(35) {
		t.Fatalf("expected score 35, got %v", data["score"])
	}

	if leads.lastOrigin != transport.OriginN8N {
		t.Fatalf("expected origin n8n, got %q", leads.lastOrigin)
	}
	if leads.lastIntake.ExternalID != "ig-42" || leads.lastIntake.BudgetMin == nil || *leads.lastIntake.BudgetMin != 150000 {
		t.Fatalf("snake_case fields not mapped: %+v", leads.lastIntake)
	}
	if leads.lastIntake.Notes != "asked about Marbella\nworkflow:wf-7" {
		t.Fatalf("unexpected notes %q", leads.lastIntake.Notes)
	}

	rec = do(engine, http.MethodPost, "/webhooks/n8n/leads", body, "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
	dup := decode(t, rec)["data"].(map[string]any)
	if dup["duplicate"] != true || dup["id"] != data["id"] {
		t.Fatalf("expected duplicate of %v, got %v", data["id"], dup)
	}
}

func TestCreateLeadValidation(t *testing.T) {
	engine := newTestRouter(newFakeLeads(), "")

	rec := do(engine, http.MethodPost, "/webhooks/n8n/leads", `{"name":"  ","source":"instagram"}`, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	rec = do(engine, http.MethodPost, "/webhooks/n8n/leads", `{"name":`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStatusReportsTransition(t *testing.T) {
	leads := newFakeLeads()
	lead, _, _ := leads.Intake(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)
	engine := newTestRouter(leads, "")

	rec := do(engine, http.MethodPost, "/webhooks/n8n/leads/"+lead.ID.String()+"/status", `{"status":"contacted"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decode(t, rec)["data"].(map[string]any)
	if data["old_status"] != "new" || data["new_status"] != "contacted" {
		t.Fatalf("unexpected transition %v", data)
	}
	if leads.lastOrigin != transport.OriginN8N {
		t.Fatalf("expected origin n8n, got %q", leads.lastOrigin)
	}
}

func TestUpdateStatusUnknownLead(t *testing.T) {
	engine := newTestRouter(newFakeLeads(), "")

	rec := do(engine, http.MethodPost, "/webhooks/n8n/leads/"+uuid.NewString()+"/status", `{"status":"won"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = do(engine, http.MethodPost, "/webhooks/n8n/leads/not-a-uuid/status", `{"status":"won"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogActivityTagsSource(t *testing.T) {
	leads := newFakeLeads()
	lead, _, _ := leads.Intake(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)
	engine := newTestRouter(leads, "")

	body := `{"type":"call","title":"Intro call","metadata":{"duration":120},"workflow_id":"wf-9"}`
	rec := do(engine, http.MethodPost, "/webhooks/n8n/leads/"+lead.ID.String()+"/activity", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decode(t, rec)["data"].(map[string]any)
	if data["lead_score"] != float64(40) {
		t.Fatalf("expected refreshed score 40, got %v", data["lead_score"])
	}

	meta := leads.lastActivity.Metadata
	if meta["source"] != "n8n_webhook" || meta["workflow_id"] != "wf-9" || meta["duration"] != float64(120) {
		t.Fatalf("unexpected metadata %v", meta)
	}
}

func TestLogActivityRejectsUnknownType(t *testing.T) {
	leads := newFakeLeads()
	lead, _, _ := leads.Intake(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)
	engine := newTestRouter(leads, "")

	rec := do(engine, http.MethodPost, "/webhooks/n8n/leads/"+lead.ID.String()+"/activity", `{"type":"fax","title":"x"}`, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestListForProcessingBindsQuery(t *testing.T) {
	leads := newFakeLeads()
	_, _, _ = leads.Intake(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)
	_, _, _ = leads.Intake(context.Background(), transport.CreateLeadRequest{Name: "Luis"}, transport.OriginAPI)
	engine := newTestRouter(leads, "")

	rec := do(engine, http.MethodGet, "/webhooks/n8n/leads/process?status=new&min_score=30&days_since_contact=3&limit=10", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["count"] != float64(2) || len(out["data"].([]any)) != 2 {
		t.Fatalf("unexpected payload %v", out)
	}

	q := leads.lastQuery
	if q.Status != "new" || q.Limit != 10 || q.MinScore == nil || *q.MinScore != 30 || q.DaysSinceContact == nil || *q.DaysSinceContact != 3 {
		t.Fatalf("query not bound: %+v", q)
	}

	rec = do(engine, http.MethodGet, "/webhooks/n8n/leads/process?limit=500", "", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for oversized limit, got %d", rec.Code)
	}
}
