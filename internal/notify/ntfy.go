package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultNtfyServer = "https://ntfy.sh"

// NtfyChannel sends notifications via ntfy.sh or self-hosted ntfy.
type NtfyChannel struct {
	serverURL string
	topic     string
	token     string
	client    *http.Client
}

// NewNtfyChannel creates a new ntfy notification channel.
func NewNtfyChannel(cfg ChannelConfig) *NtfyChannel {
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = defaultNtfyServer
	}
	return &NtfyChannel{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		topic:     cfg.Topic,
		token:     cfg.Token,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *NtfyChannel) Type() string {
	return "ntfy"
}

func ntfyPriority(p Priority) int {
	switch p {
	case PriorityLow:
		return 2
	case PriorityHigh:
		return 4
	case PriorityUrgent:
		return 5
	default:
		return 3
	}
}

// Send publishes msg as JSON to the server root, naming the topic in the body.
func (n *NtfyChannel) Send(ctx context.Context, msg *Message) error {
	payload := map[string]any{
		"topic":    n.topic,
		"title":    msg.Title,
		"message":  msg.Body,
		"priority": ntfyPriority(msg.Priority),
	}
	if len(msg.Tags) > 0 {
		payload["tags"] = msg.Tags
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.serverURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}
