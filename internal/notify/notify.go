// Package notify sends alerts when a scheduled metric changes result.
package notify

import (
	"context"
	"fmt"
	"strings"
)

// Channel is a notification channel.
type Channel interface {
	Send(ctx context.Context, msg *Message) error
	Type() string
}

// Message contains notification details.
type Message struct {
	Title    string
	Body     string
	Priority Priority
	Tags     []string
}

// Priority levels for notifications.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Status is the outcome of a metric run as seen by notifications.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAILED"
)

// StatusFromExitCode maps a metric exit code to a Status.
func StatusFromExitCode(code int) Status {
	if code == 0 {
		return StatusOK
	}
	return StatusFailed
}

// StatusChange is a transition of a metric's result on one endpoint.
// OldStatus is empty for the first recorded run.
type StatusChange struct {
	Metric    string
	Endpoint  string
	OldStatus Status
	NewStatus Status
	ExitCode  int
	Output    string
}

// maxBodyLen bounds the metric output included in a message.
const maxBodyLen = 512

// FormatStatusChange creates a notification message for a status change.
func FormatStatusChange(change *StatusChange) *Message {
	priority := PriorityNormal
	if change.NewStatus == StatusFailed {
		priority = PriorityHigh
	}

	title := fmt.Sprintf("[%s] %s on %s", change.NewStatus, change.Metric, change.Endpoint)

	output := strings.TrimSpace(change.Output)
	if len(output) > maxBodyLen {
		output = output[:maxBodyLen] + "..."
	}
	body := fmt.Sprintf("exit code %d", change.ExitCode)
	if change.OldStatus != "" {
		body = fmt.Sprintf("%s -> %s, %s", change.OldStatus, change.NewStatus, body)
	}
	if output != "" {
		body += "\n" + output
	}

	tags := []string{strings.ToLower(string(change.NewStatus))}
	if change.OldStatus == StatusFailed && change.NewStatus == StatusOK {
		tags = append(tags, "recovery")
	}

	return &Message{
		Title:    title,
		Body:     body,
		Priority: priority,
		Tags:     tags,
	}
}
