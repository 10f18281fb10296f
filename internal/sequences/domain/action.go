package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	leaddomain "realty_crm_backend/internal/leads/domain"
)

// ActionType names what a step does.
type ActionType string

const (
	ActionSendMessage  ActionType = "send_message"
	ActionUpdateStatus ActionType = "update_status"
	ActionWait         ActionType = "wait"
	ActionNotifyAgent  ActionType = "notify_agent"
	ActionAddTag       ActionType = "add_tag"
	ActionWebhook      ActionType = "webhook"
)

var (
	ErrUnknownAction = errors.New("unknown action type")
	ErrInvalidAction = errors.New("invalid action config")
)

// Action is the typed configuration of a step. The set of implementations
// is closed to this package.
type Action interface {
	Type() ActionType
	Validate() error
	isAction()
}

type SendMessageAction struct {
	MessageType string `json:"message_type,omitempty"`
	Language    string `json:"language,omitempty"`
	Tone        string `json:"tone,omitempty"`
}

type UpdateStatusAction struct {
	Status leaddomain.Status `json:"status"`
}

type WaitAction struct{}

type NotifyAgentAction struct {
	Message string `json:"message,omitempty"`
}

type AddTagAction struct {
	Tag string `json:"tag"`
}

type WebhookAction struct {
	URL string `json:"url"`
}

func (SendMessageAction) Type() ActionType  { return ActionSendMessage }
func (UpdateStatusAction) Type() ActionType { return ActionUpdateStatus }
func (WaitAction) Type() ActionType         { return ActionWait }
func (NotifyAgentAction) Type() ActionType  { return ActionNotifyAgent }
func (AddTagAction) Type() ActionType       { return ActionAddTag }
func (WebhookAction) Type() ActionType      { return ActionWebhook }

func (SendMessageAction) isAction()  {}
func (UpdateStatusAction) isAction() {}
func (WaitAction) isAction()         {}
func (NotifyAgentAction) isAction()  {}
func (AddTagAction) isAction()       {}
func (WebhookAction) isAction()      {}

func (a SendMessageAction) Validate() error {
	switch a.MessageType {
	case "", "follow_up", "outreach":
		return nil
	}
	return fmt.Errorf("%w: send_message message_type %q", ErrInvalidAction, a.MessageType)
}

func (a UpdateStatusAction) Validate() error {
	if !a.Status.Valid() {
		return fmt.Errorf("%w: update_status requires a known status", ErrInvalidAction)
	}
	return nil
}

func (WaitAction) Validate() error { return nil }

func (a NotifyAgentAction) Validate() error {
	if len(a.Message) > 1000 {
		return fmt.Errorf("%w: notify_agent message too long", ErrInvalidAction)
	}
	return nil
}

func (a AddTagAction) Validate() error {
	tag := strings.TrimSpace(a.Tag)
	if tag == "" || len(tag) > 50 {
		return fmt.Errorf("%w: add_tag requires a tag of 1-50 characters", ErrInvalidAction)
	}
	return nil
}

func (a WebhookAction) Validate() error {
	u, err := url.Parse(a.URL)
	if a.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: webhook requires an absolute http(s) url", ErrInvalidAction)
	}
	return nil
}

// DecodeAction turns a stored config into its typed form without validating
// it. Rows written before validation existed may hold incomplete configs;
// the executor treats those as no-ops.
func DecodeAction(t ActionType, raw []byte) (Action, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var (
		action Action
		err    error
	)
	switch t {
	case ActionSendMessage:
		var a SendMessageAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ActionUpdateStatus:
		var a UpdateStatusAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ActionWait:
		action = WaitAction{}
	case ActionNotifyAgent:
		var a NotifyAgentAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ActionAddTag:
		var a AddTagAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ActionWebhook:
		var a WebhookAction
		err = json.Unmarshal(raw, &a)
		action = a
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return action, nil
}

// ParseAction decodes and validates a config at authoring time.
func ParseAction(t ActionType, raw []byte) (Action, error) {
	action, err := DecodeAction(t, raw)
	if err != nil {
		return nil, err
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}
