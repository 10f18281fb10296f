package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/platform/logger"
)

type stubProvider struct {
	text    string
	err     error
	prompts []string
	block   bool
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, _, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.text, s.err
}

func sampleLead() domain.Lead {
	intent := domain.IntentInvestor
	budget := 1_500_000.0
	return domain.Lead{
		Name:        "Ana María López",
		Source:      domain.SourceInstagram,
		Intent:      &intent,
		BudgetMax:   &budget,
		Preferences: domain.Preferences{Locations: []string{"Tulum", "Playa del Carmen"}},
	}
}

func TestDisabledGeneratorReportsFailure(t *testing.T) {
	g := NewGenerator(nil, time.Second, logger.Nop())

	res := g.GenerateFollowUp(context.Background(), sampleLead(), Options{})
	if res.Success || res.Error != ErrNotConfigured.Error() || res.Type != TypeFollowUp {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFollowUpPromptCarriesOptions(t *testing.T) {
	p := &stubProvider{text: "  Hola Ana!  "}
	g := NewGenerator(p, time.Second, logger.Nop())

	res := g.GenerateFollowUp(context.Background(), sampleLead(), Options{Language: "spanish", DaysSinceContact: 9})
	if !res.Success || res.Message != "Hola Ana!" {
		t.Fatalf("unexpected result: %+v", res)
	}

	prompt := p.prompts[0]
	for _, want := range []string{"Name: Ana", "Language: spanish", "Tone: friendly but not pushy", "Days since last contact: 9"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q:\n%s", want, prompt)
		}
	}
}

func TestOutreachPromptFormatsBudget(t *testing.T) {
	p := &stubProvider{text: "hi"}
	g := NewGenerator(p, time.Second, logger.Nop())

	g.GenerateOutreach(context.Background(), sampleLead(), Options{})

	prompt := p.prompts[0]
	for _, want := range []string{"$1,500,000 USD", "Tulum, Playa del Carmen", "Platform: whatsapp", "investment opportunities"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q:\n%s", want, prompt)
		}
	}
}

func TestProviderErrorBecomesSoftFailure(t *testing.T) {
	g := NewGenerator(&stubProvider{err: errors.New("quota exceeded")}, time.Second, logger.Nop())

	res := g.GenerateFollowUp(context.Background(), sampleLead(), Options{})
	if res.Success || res.Error != "quota exceeded" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProviderTimeout(t *testing.T) {
	g := NewGenerator(&stubProvider{block: true}, 20*time.Millisecond, logger.Nop())

	res := g.GenerateFollowUp(context.Background(), sampleLead(), Options{})
	if res.Success || !strings.Contains(res.Error, "deadline") {
		t.Fatalf("expected deadline failure, got %+v", res)
	}
}

func TestOpenAIProviderParsesCompletion(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello from the coast"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "", srv.URL+"/v1")
	text, err := p.Complete(context.Background(), systemPrompt, "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello from the coast" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotModel != "gpt-4o-mini" {
		t.Fatalf("expected default model gpt-4o-mini, got %q", gotModel)
	}
}
