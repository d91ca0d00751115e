// Package alerts delivers operational notifications to Slack. Critical and
// high severity alerts post immediately; medium alerts are buffered into a
// periodic digest; low alerts are logged only.
package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/callscope/callscope/pkg/models"
)

// Alert is one operational notification. Error carries the underlying
// failure when there is one; SuggestedAction tells the on-call reader
// what to do about it.
type Alert struct {
	Severity        models.AlertSeverity
	Component       string
	TenantID        string
	CallID          string
	Summary         string
	Detail          string
	Error           string
	SuggestedAction string
}

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
}

// Service handles alert delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client *Client
	logger *slog.Logger

	mu      sync.Mutex
	pending []Alert

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new alert service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return newService(NewClient(cfg.Token, cfg.Channel))
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return newService(client)
}

func newService(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.Default().With("component", "alerts"),
	}
}

// Notify routes one alert by severity.
// Fail-open: errors are logged, never returned.
func (s *Service) Notify(ctx context.Context, alert Alert) {
	if s == nil {
		return
	}

	switch alert.Severity {
	case models.SeverityCritical, models.SeverityHigh:
		blocks := BuildAlertMessage(alert)
		if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
			s.logger.Error("Failed to send alert",
				"severity", string(alert.Severity),
				"component", alert.Component,
				"error", err)
		}
	case models.SeverityMedium:
		s.mu.Lock()
		s.pending = append(s.pending, alert)
		s.mu.Unlock()
	default:
		s.logger.Info("Alert",
			"severity", string(alert.Severity),
			"component", alert.Component,
			"summary", alert.Summary)
	}
}

// PendingCount reports how many medium alerts await the next digest.
func (s *Service) PendingCount() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// StartDigest launches the background digest loop.
func (s *Service) StartDigest(ctx context.Context, interval time.Duration) {
	if s == nil || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx, interval)

	s.logger.Info("Alert digest started", "interval", interval)
}

// Stop signals the digest loop to exit, waits for it to finish, and
// flushes any remaining buffered alerts.
func (s *Service) Stop() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.FlushDigest(context.Background())
	s.logger.Info("Alert digest stopped")
}

func (s *Service) run(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.FlushDigest(ctx)
		}
	}
}

// FlushDigest posts the buffered medium alerts as one digest message.
func (s *Service) FlushDigest(ctx context.Context) {
	if s == nil {
		return
	}

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	blocks := BuildDigestMessage(batch)
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("Failed to send alert digest",
			"count", len(batch),
			"error", err)
	}
}
