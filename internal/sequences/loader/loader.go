// Package loader reads sequence definitions from YAML so they can be kept
// in version control and imported with the sequence-import command.
//
// A file looks like:
//
//	sequences:
//	  - name: Investor nurture
//	    trigger: new_lead
//	    priority: 10
//	    conditions:
//	      intents: [investor]
//	      min_score: 40
//	    steps:
//	      - order: 1
//	        action: send_message
//	        config: {language: spanish, tone: professional}
//	      - order: 2
//	        action: wait
//	        delay_hours: 48
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/transport"

	"gopkg.in/yaml.v3"
)

var ErrEmpty = errors.New("no sequences defined")

type file struct {
	Sequences []sequenceDoc `yaml:"sequences"`
}

type sequenceDoc struct {
	Name        string        `yaml:"name"`
	Description *string       `yaml:"description,omitempty"`
	Trigger     string        `yaml:"trigger"`
	Active      *bool         `yaml:"active,omitempty"`
	Priority    int           `yaml:"priority"`
	Conditions  conditionsDoc `yaml:"conditions"`
	Steps       []stepDoc     `yaml:"steps"`
}

type conditionsDoc struct {
	Sources  []string `yaml:"sources,omitempty"`
	Intents  []string `yaml:"intents,omitempty"`
	Statuses []string `yaml:"statuses,omitempty"`
	MinScore *int     `yaml:"min_score,omitempty"`
}

type stepDoc struct {
	Order      int            `yaml:"order"`
	Action     string         `yaml:"action"`
	Config     map[string]any `yaml:"config,omitempty"`
	DelayHours int            `yaml:"delay_hours"`
	Active     *bool          `yaml:"active,omitempty"`
}

// Load reads and parses the file at path.
func Load(path string) ([]transport.CreateSequenceRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a sequences document. Unknown keys are rejected so typos in
// hand-written files surface immediately.
func Parse(r io.Reader) ([]transport.CreateSequenceRequest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("decode sequences: %w", err)
	}
	if len(doc.Sequences) == 0 {
		return nil, ErrEmpty
	}

	out := make([]transport.CreateSequenceRequest, 0, len(doc.Sequences))
	for i, s := range doc.Sequences {
		req, err := s.toRequest()
		if err != nil {
			return nil, fmt.Errorf("sequence %d (%s): %w", i+1, s.Name, err)
		}
		out = append(out, req)
	}
	return out, nil
}

func (s sequenceDoc) toRequest() (transport.CreateSequenceRequest, error) {
	req := transport.CreateSequenceRequest{
		Name:        s.Name,
		Description: s.Description,
		TriggerType: s.Trigger,
		IsActive:    s.Active,
		Priority:    s.Priority,
		TriggerConditions: domain.TriggerConditions{
			MinScore: s.Conditions.MinScore,
		},
		Steps: make([]transport.StepRequest, 0, len(s.Steps)),
	}
	for _, v := range s.Conditions.Sources {
		req.TriggerConditions.Sources = append(req.TriggerConditions.Sources, leaddomain.Source(v))
	}
	for _, v := range s.Conditions.Intents {
		req.TriggerConditions.Intents = append(req.TriggerConditions.Intents, leaddomain.Intent(v))
	}
	for _, v := range s.Conditions.Statuses {
		req.TriggerConditions.Statuses = append(req.TriggerConditions.Statuses, leaddomain.Status(v))
	}

	for _, st := range s.Steps {
		var raw json.RawMessage
		if len(st.Config) > 0 {
			encoded, err := json.Marshal(st.Config)
			if err != nil {
				return transport.CreateSequenceRequest{}, fmt.Errorf("step %d config: %w", st.Order, err)
			}
			raw = encoded
		}
		req.Steps = append(req.Steps, transport.StepRequest{
			Order:        st.Order,
			ActionType:   st.Action,
			ActionConfig: raw,
			DelayHours:   st.DelayHours,
			IsActive:     st.Active,
		})
	}
	return req, nil
}
