package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"halcyon-hq/spendwatch/pkg/caps"
	"halcyon-hq/spendwatch/pkg/telemetry/metrics"
)

// DefaultDebounceWindow is the minimum time between two notifications for
// the same (scope, level) pair.
const DefaultDebounceWindow = time.Hour

// Channel names reported in delivery results.
const (
	ChannelSlack   = "slack"
	ChannelEmail   = "email"
	ChannelHardCap = "hard_cap"
)

// Channels holds the configured outbound webhook URLs. Any of them may be
// empty; an empty URL disables that channel.
type Channels struct {
	// SlackWebhook receives the combined alert as a chat message.
	SlackWebhook string

	// EmailWebhook receives the combined alert for an email relay to send.
	EmailWebhook string

	// HardCapWebhook receives a structured event for hard-level breaches
	// only, independent of and in addition to the primary channels.
	HardCapWebhook string
}

// Empty reports whether no channel is configured.
func (c Channels) Empty() bool {
	return c.SlackWebhook == "" && c.EmailWebhook == "" && c.HardCapWebhook == ""
}

// Result is the delivery outcome for one channel.
type Result struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
}

// Dispatcher debounces cap breaches against a ledger and sends the eligible
// ones to the configured webhook channels.
//
// Delivery is best-effort: a failure on one channel never blocks the others,
// and the returned ledger is advanced for every eligible breach regardless of
// delivery outcome, so a flaky channel cannot cause re-raising within the
// same debounce window.
type Dispatcher struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	window  time.Duration
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// DebounceWindow is the minimum time between two notifications for the
	// same (scope, level) pair. Default: one hour.
	DebounceWindow time.Duration

	// Timeout bounds each webhook request. Default: 10s.
	Timeout time.Duration

	// Client overrides the HTTP client (used in tests).
	Client *http.Client

	// Logger overrides the default slog logger.
	Logger *slog.Logger

	// Metrics receives delivery counters. May be nil.
	Metrics *metrics.Metrics
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:  client,
		logger:  logger.With("component", "alerts.dispatcher"),
		metrics: cfg.Metrics,
		window:  cfg.DebounceWindow,
	}
}

// Window returns the configured debounce window.
func (d *Dispatcher) Window() time.Duration {
	return d.window
}

// Dispatch filters breaches through the debounce ledger, sends one combined
// notification per configured channel covering all eligible breaches, and
// returns the per-channel results along with the updated ledger.
//
// If no breach survives the filter, no channel is contacted and the input
// ledger is returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, breaches []caps.Breach, totals map[caps.Scope]float64, ledger Ledger, channels Channels, now time.Time) ([]Result, Ledger) {
	eligible := ledger.Eligible(breaches, now, d.window)
	if len(eligible) == 0 {
		return nil, ledger
	}

	var results []Result

	if channels.SlackWebhook != "" {
		ok := d.post(ctx, ChannelSlack, channels.SlackWebhook, buildSlackPayload(eligible, now))
		results = append(results, Result{Channel: ChannelSlack, OK: ok})
		d.metrics.RecordDelivery(ChannelSlack, ok)
	}

	if channels.EmailWebhook != "" {
		ok := d.post(ctx, ChannelEmail, channels.EmailWebhook, buildEmailPayload(eligible, now))
		results = append(results, Result{Channel: ChannelEmail, OK: ok})
		d.metrics.RecordDelivery(ChannelEmail, ok)
	}

	if channels.HardCapWebhook != "" {
		var hard []caps.Breach
		for _, b := range eligible {
			if b.Level == caps.LevelHard {
				hard = append(hard, b)
			}
		}
		if len(hard) > 0 {
			ok := d.post(ctx, ChannelHardCap, channels.HardCapWebhook, buildHardCapPayload(hard, totals, now))
			results = append(results, Result{Channel: ChannelHardCap, OK: ok})
			d.metrics.RecordDelivery(ChannelHardCap, ok)
		}
	}

	return results, ledger.WithSent(eligible, now)
}

// post sends one JSON payload to a webhook URL. Failures are logged and
// reported as false, never returned as errors.
func (d *Dispatcher) post(ctx context.Context, channel, url string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to encode alert payload", "channel", channel, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("failed to build alert request", "channel", channel, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("alert delivery failed", "channel", channel, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("alert delivery rejected", "channel", channel,
			"error", fmt.Sprintf("unexpected status %d", resp.StatusCode))
		return false
	}
	return true
}
