package notify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jandubois/rsvctl/internal/schedule"
)

// ChannelConfig is one entry of the notify list in the settings file.
type ChannelConfig struct {
	Type string `yaml:"type"`

	// ntfy
	ServerURL string `yaml:"server_url,omitempty"`
	Topic     string `yaml:"topic,omitempty"`
	Token     string `yaml:"token,omitempty"`

	// pushover
	APIToken string `yaml:"api_token,omitempty"`
	UserKey  string `yaml:"user_key,omitempty"`
	APIURL   string `yaml:"api_url,omitempty"`
}

// Validate checks that the entry names a known channel type and carries
// the fields that type needs.
func (c ChannelConfig) Validate() error {
	switch c.Type {
	case "ntfy":
		if c.Topic == "" {
			return fmt.Errorf("ntfy channel requires a topic")
		}
	case "pushover":
		if c.APIToken == "" || c.UserKey == "" {
			return fmt.Errorf("pushover channel requires api_token and user_key")
		}
	default:
		return fmt.Errorf("unknown notification channel type %q", c.Type)
	}
	return nil
}

// Dispatcher sends result changes to every configured channel.
type Dispatcher struct {
	channels []Channel
}

// NewDispatcher creates a dispatcher for the configured channels.
func NewDispatcher(configs []ChannelConfig) (*Dispatcher, error) {
	d := &Dispatcher{}
	for _, cfg := range configs {
		channel, err := createChannel(cfg)
		if err != nil {
			return nil, err
		}
		d.channels = append(d.channels, channel)
	}
	slog.Info("loaded notification channels", "count", len(d.channels))
	return d, nil
}

// NewDispatcherWithChannels creates a dispatcher for existing channels.
func NewDispatcherWithChannels(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels}
}

func createChannel(cfg ChannelConfig) (Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "ntfy":
		return NewNtfyChannel(cfg), nil
	default:
		return NewPushoverChannel(cfg), nil
	}
}

// Len returns the number of channels.
func (d *Dispatcher) Len() int {
	return len(d.channels)
}

// Notify sends change to every channel and waits for the sends to finish.
// Failures are logged.
func (d *Dispatcher) Notify(ctx context.Context, change *StatusChange) {
	msg := FormatStatusChange(change)

	var g errgroup.Group
	for _, ch := range d.channels {
		g.Go(func() error {
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("notification send failed",
					"channel_type", ch.Type(),
					"metric", change.Metric,
					"error", err,
				)
				return nil
			}
			slog.Debug("notification sent",
				"channel_type", ch.Type(),
				"metric", change.Metric,
				"endpoint", change.Endpoint,
				"status", change.NewStatus,
			)
			return nil
		})
	}
	_ = g.Wait()
}

// RunCompleted notifies when a scheduled run changes the metric's status,
// or when the first run of a metric fails.
func (d *Dispatcher) RunCompleted(ctx context.Context, reg *schedule.Registration, prev, cur *schedule.Run) {
	change := &StatusChange{
		Metric:    reg.Metric,
		Endpoint:  reg.Endpoint,
		NewStatus: StatusFromExitCode(cur.ExitCode),
		ExitCode:  cur.ExitCode,
		Output:    cur.Stdout + cur.Stderr,
	}
	if prev != nil {
		change.OldStatus = StatusFromExitCode(prev.ExitCode)
	}

	switch {
	case change.OldStatus == change.NewStatus:
		return
	case change.OldStatus == "" && change.NewStatus == StatusOK:
		return
	}
	d.Notify(ctx, change)
}
