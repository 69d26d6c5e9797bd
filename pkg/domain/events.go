package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepEnter  EventType = "step_enter"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventCallEnd    EventType = "call_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`
}

// StepEvent represents entry into a step. Retries of the same step emit one each.
type StepEvent struct {
	EventBase
	From    Step `json:"from"`
	Step    Step `json:"step"`
	Attempt int  `json:"attempt,omitempty"`
}

// ToolEvent represents one tool invocation from the conversational layer.
type ToolEvent struct {
	EventBase
	Step    Step   `json:"step"`
	Tool    Tool   `json:"tool"`
	Input   any    `json:"input,omitempty"`
	Next    Step   `json:"next,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CallEvent represents the end of a call.
type CallEvent struct {
	EventBase
	FollowUpRequired bool           `json:"follow_up_required"`
	FollowUpReason   FollowUpReason `json:"follow_up_reason,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStepEnter  func(context.Context, *StepEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnCallEnd    func(context.Context, *CallEvent)
}
