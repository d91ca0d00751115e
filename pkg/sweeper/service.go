// Package sweeper is the periodic safety net for calls the webhooks never
// finished: it moves past-due calls to waiting, pulls missed transcripts
// from providers that support listing, and ghosts calls that waited too
// long.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/transcript"
)

const (
	defaultInterval     = 5 * time.Minute
	defaultGhostTimeout = 120 * time.Minute
	defaultPullLookback = 6 * time.Hour
)

// CallSource is the slice of the call store the sweeper scans.
type CallSource interface {
	ListByStatesAllTenants(ctx context.Context, states []models.AttendanceState) ([]models.Call, error)
}

// CloserSource lists the closers eligible for transcript pulls.
type CloserSource interface {
	ListActiveAllTenants(ctx context.Context) ([]models.Closer, error)
}

// TranscriptPuller is one provider's catch-up API, scoped to a single
// closer's credential. *fathom.Client satisfies it.
type TranscriptPuller interface {
	ListMeetings(ctx context.Context, since time.Time) ([]models.CanonicalTranscript, error)
	GetMeeting(ctx context.Context, meetingID string) (*models.CanonicalTranscript, error)
}

// PullerFactory builds a pull client from a closer's API key.
type PullerFactory func(apiKey string) TranscriptPuller

// Dispatcher feeds pulled transcripts into the transcript pipeline.
// *transcript.Orchestrator satisfies it.
type Dispatcher interface {
	MatchCall(ctx context.Context, tenantID, closerID string, t *models.CanonicalTranscript) (*models.Call, error)
	ProcessCanonical(ctx context.Context, t *models.CanonicalTranscript, hints transcript.Hints) (*transcript.Result, error)
}

// Deps wires the sweeper. Pullers maps provider keys to factories; a
// closer whose provider has no entry is skipped by the pull phase.
type Deps struct {
	Config      *config.SweeperConfig
	Calls       CallSource
	Closers     CloserSource
	Machine     *lifecycle.Machine
	Transcripts Dispatcher
	Pullers     map[string]PullerFactory
}

// Service runs the three sweep phases on a fixed interval. Phases run
// sequentially within a tick; a tick never starts before the previous one
// finishes.
type Service struct {
	cfg         *config.SweeperConfig
	calls       CallSource
	closers     CloserSource
	machine     *lifecycle.Machine
	transcripts Dispatcher
	pullers     map[string]PullerFactory
	logger      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(deps Deps) *Service {
	return &Service{
		cfg:         deps.Config,
		calls:       deps.Calls,
		closers:     deps.Closers,
		machine:     deps.Machine,
		transcripts: deps.Transcripts,
		pullers:     deps.Pullers,
		logger:      slog.With("component", "sweeper"),
	}
}

// Start launches the background sweep loop. The first sweep runs
// immediately.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.IsEnabled() {
		s.logger.Info("Sweeper disabled by configuration")
		return
	}
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Sweeper started",
		"interval", s.interval(),
		"ghost_timeout", s.ghostTimeout(),
		"pull_lookback", s.pullLookback())
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass: pending to waiting, transcript pull, waiting
// to ghosted. Exported so the admin surface can trigger an immediate pass.
func (s *Service) Sweep(ctx context.Context) {
	s.advancePending(ctx)
	s.pullTranscripts(ctx)
	s.ghostStale(ctx)
}

// advancePending moves calls whose appointment window is strictly past
// out of {unset, Scheduled} into Waiting for Outcome.
func (s *Service) advancePending(ctx context.Context) {
	calls, err := s.calls.ListByStatesAllTenants(ctx, config.PendingStates)
	if err != nil {
		s.logger.Error("Sweep: pending scan failed", "error", err)
		return
	}

	now := time.Now()
	moved := 0
	for i := range calls {
		call := &calls[i]
		deadline := call.EndTime()
		if deadline.IsZero() || !deadline.Before(now) {
			continue
		}
		err := s.machine.Transition(ctx, call, models.AttendanceWaiting,
			models.TriggerTimePassed, models.TriggerSourceTimeout, "appointment time passed", nil)
		if err != nil {
			s.logger.Warn("Sweep: waiting transition failed",
				"call_id", call.ID, "tenant_id", call.TenantID, "error", err)
			continue
		}
		moved++
	}
	if moved > 0 {
		s.logger.Info("Sweep: advanced past-due calls", "count", moved)
	}
}

// pullTranscripts lists recent meetings for every active closer whose
// provider supports pulling, and dispatches any that belong to a waiting
// call. One closer's failure never blocks the others.
func (s *Service) pullTranscripts(ctx context.Context) {
	if len(s.pullers) == 0 {
		return
	}
	closers, err := s.closers.ListActiveAllTenants(ctx)
	if err != nil {
		s.logger.Error("Sweep: closer scan failed", "error", err)
		return
	}

	since := time.Now().Add(-s.pullLookback())
	for i := range closers {
		closer := &closers[i]
		factory, ok := s.pullers[closer.TranscriptProvider]
		if !ok || closer.ProviderAPIKey == "" {
			continue
		}
		if err := s.pullCloser(ctx, closer, factory(closer.ProviderAPIKey), since); err != nil {
			s.logger.Warn("Sweep: transcript pull failed",
				"closer_id", closer.ID, "tenant_id", closer.TenantID, "error", err)
		}
	}
}

func (s *Service) pullCloser(ctx context.Context, closer *models.Closer, puller TranscriptPuller, since time.Time) error {
	meetings, err := puller.ListMeetings(ctx, since)
	if err != nil {
		return err
	}

	recovered := 0
	for i := range meetings {
		meeting := &meetings[i]
		if meeting.Partial {
			full, err := puller.GetMeeting(ctx, meeting.MeetingID)
			if err != nil {
				s.logger.Warn("Sweep: meeting detail fetch failed",
					"meeting_id", meeting.MeetingID, "closer_id", closer.ID, "error", err)
				continue
			}
			if full.Partial {
				continue
			}
			meeting = full
		}

		match, err := s.transcripts.MatchCall(ctx, closer.TenantID, closer.ID, meeting)
		if err != nil {
			return err
		}
		if match == nil || match.AttendanceStatus != models.AttendanceWaiting {
			continue
		}

		hints := transcript.Hints{
			TenantID: closer.TenantID,
			CallID:   match.ID,
			Source:   models.TriggerSourceTimeout,
		}
		if _, err := s.transcripts.ProcessCanonical(ctx, meeting, hints); err != nil {
			s.logger.Warn("Sweep: transcript dispatch failed",
				"call_id", match.ID, "meeting_id", meeting.MeetingID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("Sweep: recovered transcripts by pull",
			"closer_id", closer.ID, "tenant_id", closer.TenantID, "count", recovered)
	}
	return nil
}

// ghostStale moves waiting calls whose end is older than the ghost
// timeout to Ghosted - No Show.
func (s *Service) ghostStale(ctx context.Context) {
	calls, err := s.calls.ListByStatesAllTenants(ctx, []models.AttendanceState{models.AttendanceWaiting})
	if err != nil {
		s.logger.Error("Sweep: waiting scan failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.ghostTimeout())
	ghosted := 0
	for i := range calls {
		call := &calls[i]
		end := call.EndTime()
		if end.IsZero() || !end.Before(cutoff) {
			continue
		}
		detail := fmt.Sprintf("no transcript within %s", s.ghostTimeout())
		err := s.machine.Transition(ctx, call, models.AttendanceGhosted,
			models.TriggerTranscriptTimeout, models.TriggerSourceTimeout, detail, nil)
		if err != nil {
			s.logger.Warn("Sweep: ghost transition failed",
				"call_id", call.ID, "tenant_id", call.TenantID, "error", err)
			continue
		}
		ghosted++
	}
	if ghosted > 0 {
		s.logger.Info("Sweep: ghosted stale calls", "count", ghosted)
	}
}

func (s *Service) interval() time.Duration {
	if s.cfg != nil && s.cfg.Interval > 0 {
		return s.cfg.Interval
	}
	return defaultInterval
}

func (s *Service) ghostTimeout() time.Duration {
	if s.cfg != nil && s.cfg.GhostTimeout > 0 {
		return s.cfg.GhostTimeout
	}
	return defaultGhostTimeout
}

func (s *Service) pullLookback() time.Duration {
	if s.cfg != nil && s.cfg.PullLookback > 0 {
		return s.cfg.PullLookback
	}
	return defaultPullLookback
}
