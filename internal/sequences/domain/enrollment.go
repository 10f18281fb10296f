package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid enrollment status transition")

// IsLive reports whether the enrollment still blocks re-enrollment.
func (s EnrollmentStatus) IsLive() bool {
	return s == EnrollmentActive || s == EnrollmentPaused
}

// IsTerminal reports whether no further transition is possible.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to EnrollmentStatus) bool {
	switch from {
	case EnrollmentActive:
		return to == EnrollmentPaused || to == EnrollmentCancelled || to == EnrollmentCompleted
	case EnrollmentPaused:
		return to == EnrollmentActive || to == EnrollmentCancelled
	}
	return false
}

// Enrollment binds one lead to one sequence.
type Enrollment struct {
	ID            uuid.UUID        `json:"id"`
	LeadID        uuid.UUID        `json:"leadId"`
	SequenceID    uuid.UUID        `json:"sequenceId"`
	CurrentStepID *uuid.UUID       `json:"currentStepId,omitempty"`
	Status        EnrollmentStatus `json:"status"`
	EnrolledAt    time.Time        `json:"enrolledAt"`
	NextActionAt  *time.Time       `json:"nextActionAt,omitempty"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	Metadata      map[string]any   `json:"metadata"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// ExecutionStatus is the outcome recorded for one step attempt.
type ExecutionStatus string

const (
	ExecutionPending  ExecutionStatus = "pending"
	ExecutionExecuted ExecutionStatus = "executed"
	ExecutionFailed   ExecutionStatus = "failed"
	ExecutionSkipped  ExecutionStatus = "skipped"
)

// ExecutionLog records one step attempt.
type ExecutionLog struct {
	ID           uuid.UUID       `json:"id"`
	EnrollmentID uuid.UUID       `json:"enrollmentId"`
	StepID       *uuid.UUID      `json:"stepId,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Result       string          `json:"result"`
	ScheduledAt  *time.Time      `json:"scheduledAt,omitempty"`
	ExecutedAt   *time.Time      `json:"executedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
