// Package events defines event types and structures for instance lifecycle
// notifications.
package events

import (
	"time"

	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/rules"
	"github.com/google/uuid"
)

type EventType string

// Event is anything publishable on the flowdesk bus.
type Event interface {
	GetType() EventType
}

// Topic carries all flowdesk events on the bus.
const Topic = "flowdesk.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceAdvancedEvent  EventType = "instance.advanced"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceCancelledEvent EventType = "instance.cancelled"

	// Submission decision events.
	SubmissionRejectedEvent EventType = "submission.rejected"
	ApprovalRequestedEvent  EventType = "approval.requested"

	// Rule side-effect events (NOTIFY_ADMIN, ESCALATE).
	RuleNotificationEvent EventType = "rule.notification"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	InstanceID string         `json:"instance_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps an event envelope with a fresh id and the current time.
func NewBaseEvent(eventType EventType, workflowID, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		InstanceID: instanceID,
	}
}

type InstanceStarted struct {
	BaseEvent

	CurrentStepID string `json:"current_step_id"`
	StartedBy     string `json:"started_by,omitempty"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceAdvanced struct {
	BaseEvent

	FromStepID string `json:"from_step_id"`
	ToStepID   string `json:"to_step_id"`
}

func (e InstanceAdvanced) GetType() EventType {
	return InstanceAdvancedEvent
}

type InstanceCompleted struct {
	BaseEvent

	FinalStepID string            `json:"final_step_id"`
	FormData    map[string]string `json:"form_data,omitempty"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceCancelled struct {
	BaseEvent

	LastStepID string `json:"last_step_id,omitempty"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type SubmissionRejected struct {
	BaseEvent

	StepID string `json:"step_id"`
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

func (e SubmissionRejected) GetType() EventType {
	return SubmissionRejectedEvent
}

type ApprovalRequested struct {
	BaseEvent

	StepID       string `json:"step_id"`
	Rule         string `json:"rule"`
	ApproverRole string `json:"approver_role,omitempty"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

// RuleNotification is the outbound payload for NOTIFY_ADMIN and ESCALATE rule
// actions. It is fire-and-forget: the engine appends it to the outbound queue
// and advancement does not depend on delivery.
type RuleNotification struct {
	BaseEvent

	StepID  string            `json:"step_id"`
	Rule    string            `json:"rule"`
	Action  models.RuleAction `json:"action"`
	Message string            `json:"message"`
}

func (e RuleNotification) GetType() EventType {
	return RuleNotificationEvent
}

// FromRuleNotification wraps a rule engine notification in an event envelope.
func FromRuleNotification(workflowID, instanceID, stepID string, notification rules.Notification) RuleNotification {
	return RuleNotification{
		BaseEvent: NewBaseEvent(RuleNotificationEvent, workflowID, instanceID),
		StepID:    stepID,
		Rule:      notification.Rule,
		Action:    notification.Action,
		Message:   notification.Message,
	}
}
