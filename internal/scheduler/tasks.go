package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSequenceTick = "sequences.tick"

const TaskInactivitySweep = "sequences.inactivity_sweep"

// SequenceTickPayload overrides the configured batch limit when Limit > 0.
type SequenceTickPayload struct {
	Limit int `json:"limit,omitempty"`
}

type InactivitySweepPayload struct {
	InactiveDays int `json:"inactiveDays,omitempty"`
	// Limit is the page size; the sweep still covers every candidate.
	Limit int `json:"limit,omitempty"`
}

func NewSequenceTickTask(payload SequenceTickPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSequenceTick, data), nil
}

func ParseSequenceTickPayload(task *asynq.Task) (SequenceTickPayload, error) {
	var payload SequenceTickPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SequenceTickPayload{}, err
	}
	return payload, nil
}

func NewInactivitySweepTask(payload InactivitySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInactivitySweep, data), nil
}

func ParseInactivitySweepPayload(task *asynq.Task) (InactivitySweepPayload, error) {
	var payload InactivitySweepPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return InactivitySweepPayload{}, err
	}
	return payload, nil
}
