package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
)

const defaultRetries = 3

// Dispatcher delivers events to configured HTTP endpoints, implementing
// domain.EventSink. Delivery is fire-and-forget on a background goroutine;
// a slow or failing endpoint must never stall an agent turn. A nil
// *Dispatcher is valid and drops everything.
type Dispatcher struct {
	endpoints []config.EndpointConfig
	client    *http.Client
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// Compile-time interface assertion.
var _ domain.EventSink = (*Dispatcher)(nil)

// NewDispatcher creates a webhook dispatcher for the configured endpoints.
// Returns nil (a valid no-op sink) when webhooks are disabled.
func NewDispatcher(cfg config.WebhooksConfig, logger *slog.Logger) *Dispatcher {
	if !cfg.Enabled || len(cfg.Endpoints) == 0 {
		return nil
	}
	return &Dispatcher{
		endpoints: cfg.Endpoints,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// Emit publishes an event to every subscribed endpoint. Safe on a nil
// dispatcher.
func (d *Dispatcher) Emit(event domain.Event, data map[string]any) {
	if d == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event":     string(event),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
	if err != nil {
		d.logger.Warn("webhook payload marshal failed", "event", event, "error", err)
		return
	}

	for _, ep := range d.endpoints {
		if !subscribed(ep, event) {
			continue
		}
		ep := ep
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(ep, event, payload)
		}()
	}
}

// Wait blocks until all in-flight deliveries finish. Used by shutdown and
// tests.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func subscribed(ep config.EndpointConfig, event domain.Event) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, e := range ep.Events {
		if e == string(event) {
			return true
		}
	}
	return false
}

// deliver posts the payload with exponential backoff between attempts.
func (d *Dispatcher) deliver(ep config.EndpointConfig, event domain.Event, payload []byte) {
	retries := ep.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}
		if err := d.post(ep, payload); err != nil {
			d.logger.Warn("webhook delivery failed",
				"url", ep.URL,
				"event", event,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}
		return
	}

	d.logger.Error("webhook delivery gave up",
		"url", ep.URL,
		"event", event,
		"retries", retries,
	)
}

func (d *Dispatcher) post(ep config.EndpointConfig, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Secret != "" {
		req.Header.Set("X-Webhook-Secret", ep.Secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
