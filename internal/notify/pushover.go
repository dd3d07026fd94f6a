package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultPushoverURL = "https://api.pushover.net/1/messages.json"

// PushoverChannel sends notifications via Pushover.
type PushoverChannel struct {
	apiURL   string
	apiToken string
	userKey  string
	client   *http.Client
}

// NewPushoverChannel creates a new Pushover notification channel.
func NewPushoverChannel(cfg ChannelConfig) *PushoverChannel {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultPushoverURL
	}
	return &PushoverChannel{
		apiURL:   apiURL,
		apiToken: cfg.APIToken,
		userKey:  cfg.UserKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PushoverChannel) Type() string {
	return "pushover"
}

func pushoverPriority(pr Priority) int {
	return int(pr) - 1
}

func (p *PushoverChannel) Send(ctx context.Context, msg *Message) error {
	data := url.Values{
		"token":    {p.apiToken},
		"user":     {p.userKey},
		"title":    {msg.Title},
		"message":  {msg.Body},
		"priority": {strconv.Itoa(pushoverPriority(msg.Priority))},
	}
	// Emergency priority must be acknowledged and is retried until then.
	if msg.Priority == PriorityUrgent {
		data.Set("retry", "60")
		data.Set("expire", "3600")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("pushover returned status %d", resp.StatusCode)
	}
	return nil
}
