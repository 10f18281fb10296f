package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/messaging"
	"realty_crm_backend/internal/sequences/domain"

	"github.com/google/uuid"
)

const (
	activitySource       = "sequence"
	defaultAgentNotice   = "Review this lead for follow-up"
	webhookUserAgent     = "realty-crm-sequences/1.0"
	maxWebhookBodyToRead = 64 << 10
)

// stepResult is the outcome of one action. ok is the value execute reports;
// status and detail go to the execution log.
type stepResult struct {
	ok     bool
	status domain.ExecutionStatus
	detail string
}

func performed(detail string) stepResult {
	return stepResult{ok: true, status: domain.ExecutionExecuted, detail: detail}
}

func skipped(detail string) stepResult {
	return stepResult{status: domain.ExecutionSkipped, detail: detail}
}

func failed(detail string) stepResult {
	return stepResult{status: domain.ExecutionFailed, detail: detail}
}

// execute performs step for lead against st. Configuration problems and
// external failures come back as a non-ok result; only store errors and
// panics are returned as errors.
func (e *Engine) execute(ctx context.Context, st Store, lead leaddomain.Lead, step domain.Step) (res stepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s step panicked: %v", step.ActionType, r)
		}
	}()

	switch action := step.Action.(type) {
	case domain.SendMessageAction:
		return e.sendMessage(ctx, st, lead, action)
	case domain.UpdateStatusAction:
		return e.updateStatus(ctx, st, lead, action)
	case domain.WaitAction:
		return performed("wait"), nil
	case domain.NotifyAgentAction:
		return e.notifyAgent(ctx, st, lead, action)
	case domain.AddTagAction:
		return e.addTag(ctx, st, lead, action)
	case domain.WebhookAction:
		return e.callWebhook(ctx, lead, action), nil
	default:
		e.log.Warn("unknown sequence action type", "action_type", step.ActionType, "step_id", step.ID)
		return skipped(fmt.Sprintf("unknown action type %q", step.ActionType)), nil
	}
}

func (e *Engine) sendMessage(ctx context.Context, st Store, lead leaddomain.Lead, a domain.SendMessageAction) (stepResult, error) {
	if e.messages == nil {
		return failed(messaging.ErrNotConfigured.Error()), nil
	}

	messageType := a.MessageType
	if messageType == "" {
		messageType = messaging.TypeFollowUp
	}
	language := a.Language
	if language == "" {
		language = "english"
	}
	tone := a.Tone
	if tone == "" {
		tone = "friendly"
	}

	result := e.messages.GenerateFollowUp(ctx, lead, messaging.Options{
		Language:         language,
		Tone:             tone,
		DaysSinceContact: int(e.now().Sub(lead.LastTouch()).Hours() / 24),
	})
	if !result.Success {
		return failed(result.Error), nil
	}

	if _, err := st.Leads().AddActivity(ctx, leaddomain.NewActivity{
		LeadID:      lead.ID,
		Type:        leaddomain.ActivityMessage,
		Title:       "Automated message generated",
		Description: result.Message,
		Metadata: map[string]any{
			"source":       activitySource,
			"message_type": messageType,
		},
	}); err != nil {
		return stepResult{}, err
	}
	return performed("message generated"), nil
}

func (e *Engine) updateStatus(ctx context.Context, st Store, lead leaddomain.Lead, a domain.UpdateStatusAction) (stepResult, error) {
	if !a.Status.Valid() {
		return skipped("update_status has no valid status"), nil
	}

	previous, err := st.Leads().UpdateStatus(ctx, lead.ID, a.Status)
	if err != nil {
		return stepResult{}, err
	}

	if _, err := st.Leads().AddActivity(ctx, leaddomain.NewActivity{
		LeadID:      lead.ID,
		Type:        leaddomain.ActivityStatusChange,
		Title:       "Status updated by automation",
		Description: fmt.Sprintf("Status changed from %s to %s", previous, a.Status),
		Metadata: map[string]any{
			"old_status": string(previous),
			"new_status": string(a.Status),
			"source":     activitySource,
		},
	}); err != nil {
		return stepResult{}, err
	}
	return performed(fmt.Sprintf("%s -> %s", previous, a.Status)), nil
}

func (e *Engine) notifyAgent(ctx context.Context, st Store, lead leaddomain.Lead, a domain.NotifyAgentAction) (stepResult, error) {
	message := strings.TrimSpace(a.Message)
	if message == "" {
		message = defaultAgentNotice
	}

	metadata := map[string]any{
		"source":            activitySource,
		"notification_type": "agent_alert",
	}
	if lead.AssignedAgentID != nil {
		metadata["agent_id"] = lead.AssignedAgentID.String()
	}

	if _, err := st.Leads().AddActivity(ctx, leaddomain.NewActivity{
		LeadID:      lead.ID,
		Type:        leaddomain.ActivityNote,
		Title:       "Agent notification",
		Description: message,
		Metadata:    metadata,
	}); err != nil {
		return stepResult{}, err
	}
	return performed("agent notified"), nil
}

func (e *Engine) addTag(ctx context.Context, st Store, lead leaddomain.Lead, a domain.AddTagAction) (stepResult, error) {
	tag := strings.TrimSpace(a.Tag)
	if tag == "" {
		return skipped("add_tag has no tag"), nil
	}

	added, err := st.Leads().AddTag(ctx, lead.ID, tag)
	if err != nil {
		return stepResult{}, err
	}
	if !added {
		return performed(fmt.Sprintf("tag %q already present", tag)), nil
	}
	return performed(fmt.Sprintf("tag %q added", tag)), nil
}

type webhookPayload struct {
	LeadID     uuid.UUID `json:"lead_id"`
	LeadName   string    `json:"lead_name"`
	LeadEmail  *string   `json:"lead_email"`
	LeadPhone  *string   `json:"lead_phone"`
	LeadStatus string    `json:"lead_status"`
	LeadScore  int       `json:"lead_score"`
	Timestamp  string    `json:"timestamp"`
}

// callWebhook posts the lead summary to the configured URL. Any transport
// error, timeout or non-2xx response is a failed result, never an error.
func (e *Engine) callWebhook(ctx context.Context, lead leaddomain.Lead, a domain.WebhookAction) stepResult {
	if strings.TrimSpace(a.URL) == "" {
		return skipped("webhook has no url")
	}

	body, err := json.Marshal(webhookPayload{
		LeadID:     lead.ID,
		LeadName:   lead.Name,
		LeadEmail:  lead.Email,
		LeadPhone:  lead.Phone,
		LeadStatus: string(lead.Status),
		LeadScore:  lead.Score,
		Timestamp:  e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return failed(err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return failed(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		e.metrics.WebhookCalled(time.Since(start), false)
		e.log.Error("webhook execution failed", "url", a.URL, "lead_id", lead.ID, "error", err)
		return failed(err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxWebhookBodyToRead))

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	e.metrics.WebhookCalled(time.Since(start), ok)
	if !ok {
		e.log.Warn("webhook returned non-success status", "url", a.URL, "lead_id", lead.ID, "status", resp.StatusCode)
		return failed(fmt.Sprintf("webhook responded %d", resp.StatusCode))
	}
	return performed(fmt.Sprintf("webhook responded %d", resp.StatusCode))
}
