package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/models"
)

// Completer is the model seam. *LLM satisfies it; tests use a fake.
type Completer interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
}

// CallSink is the slice of the call store the analyzer writes through
// outside of transitions.
type CallSink interface {
	Update(ctx context.Context, tenantID, id string, upd *models.CallUpdate) error
}

// CloserSource resolves the closer for the prompt metadata.
type CloserSource interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Closer, error)
}

// ObjectionSink persists validated objections.
type ObjectionSink interface {
	Insert(ctx context.Context, obj *models.Objection) error
}

// CostSink records entries in the AI cost ledger.
type CostSink interface {
	Insert(ctx context.Context, entry *models.CostEntry) error
}

// Deps wires the analyzer.
type Deps struct {
	LLM        Completer
	Machine    *lifecycle.Machine
	Calls      CallSink
	Closers    CloserSource
	Objections ObjectionSink
	Costs      CostSink
	Recorder   *audit.Recorder
	Config     config.AIConfig
}

// Analyzer runs the analysis pipeline on one shown call. Failures mark the
// call's processing state as error and never touch its attendance: a call
// the AI could not analyze is still a call that happened.
type Analyzer struct {
	llm        Completer
	prompts    *PromptBuilder
	machine    *lifecycle.Machine
	calls      CallSink
	closers    CloserSource
	objections ObjectionSink
	costs      CostSink
	recorder   *audit.Recorder
	cfg        config.AIConfig
	logger     *slog.Logger
}

func NewAnalyzer(deps Deps) *Analyzer {
	return &Analyzer{
		llm:        deps.LLM,
		prompts:    NewPromptBuilder(),
		machine:    deps.Machine,
		calls:      deps.Calls,
		closers:    deps.Closers,
		objections: deps.Objections,
		costs:      deps.Costs,
		recorder:   deps.Recorder,
		cfg:        deps.Config,
		logger:     slog.With("component", "ai"),
	}
}

// Analyze classifies the call from its transcript and persists the result:
// the outcome transition with scores and summary fields in one write, one
// objection row per validated objection, and a cost ledger entry.
func (a *Analyzer) Analyze(ctx context.Context, tenant *models.Tenant, call *models.Call, t *models.CanonicalTranscript) error {
	closerName := ""
	if call.CloserID != "" {
		closer, err := a.closers.GetByID(ctx, call.TenantID, call.CloserID)
		if err != nil {
			a.logger.Warn("Closer lookup failed for analysis prompt",
				"call_id", call.ID, "closer_id", call.CloserID, "error", err)
		} else {
			closerName = closer.Name
		}
	}

	system := a.prompts.BuildSystemPrompt(tenant)
	user := a.prompts.BuildUserMessage(call, closerName, t.Text)

	started := time.Now()
	comp, err := a.llm.Complete(ctx, system, user)
	if err != nil {
		a.markError(ctx, call, "LLM request failed", err)
		return fmt.Errorf("analyzing call %s: %w", call.ID, err)
	}
	// Tokens were spent even if the response turns out unusable.
	a.recordCost(ctx, call, comp, time.Since(started))

	parsed, err := parseResponse(comp.Text)
	if err != nil {
		a.markError(ctx, call, "unusable model response", err)
		return fmt.Errorf("analyzing call %s: %w", call.ID, err)
	}

	if err := a.persistOutcome(ctx, call, t, parsed); err != nil {
		a.markError(ctx, call, "persisting analysis failed", err)
		return fmt.Errorf("analyzing call %s: %w", call.ID, err)
	}

	a.insertObjections(ctx, call, parsed.Objections)

	a.logger.Info("Call analyzed",
		"call_id", call.ID,
		"tenant_id", call.TenantID,
		"outcome", parsed.CallOutcome,
		"objections", len(parsed.Objections))
	return nil
}

// persistOutcome applies the outcome transition with every analysis field
// batched into the same write.
func (a *Analyzer) persistOutcome(ctx context.Context, call *models.Call, t *models.CanonicalTranscript, parsed *analysisResponse) error {
	outcome := models.CallOutcome(parsed.CallOutcome)

	upd := &models.CallUpdate{
		CallOutcome:            &outcome,
		DiscoveryScore:         models.Ptr(clampScore(parsed.DiscoveryScore, a.cfg)),
		PitchScore:             models.Ptr(clampScore(parsed.PitchScore, a.cfg)),
		CloseScore:             models.Ptr(clampScore(parsed.CloseScore, a.cfg)),
		ObjectionHandlingScore: models.Ptr(clampScore(parsed.ObjectionHandlingScore, a.cfg)),
		OverallScore:           models.Ptr(clampScore(parsed.OverallScore, a.cfg)),
		ScriptAdherenceScore:   models.Ptr(clampScore(parsed.ScriptAdherenceScore, a.cfg)),
		ProspectFitScore:       models.Ptr(clampScore(parsed.ProspectFitScore, a.cfg)),
		ProcessingStatus:       models.Ptr(models.ProcessingComplete),
		TranscriptStatus:       models.Ptr(models.TranscriptProcessed),
	}
	setIfPresent(&upd.ProspectTemperature, parsed.ProspectTemperature)
	setIfPresent(&upd.ProspectGoals, parsed.ProspectGoals)
	setIfPresent(&upd.ProspectPains, parsed.ProspectPains)
	setIfPresent(&upd.CurrentSituation, parsed.CurrentSituation)
	setIfPresent(&upd.CallSummary, parsed.CallSummary)

	detail := fmt.Sprintf("ai outcome from transcript %s", t.MeetingID)
	return a.machine.Transition(ctx, call, outcome.AttendanceState(),
		models.TriggerAIOutcome, models.TriggerSourceAIProcessing, detail, upd)
}

// insertObjections writes one row per objection. Types outside the
// taxonomy land as Other rather than being dropped. Insert failures are
// logged and skipped: the outcome transition has already committed.
func (a *Analyzer) insertObjections(ctx context.Context, call *models.Call, objections []analysisObjection) {
	for _, o := range objections {
		text := strings.TrimSpace(o.Text)
		if text == "" && strings.TrimSpace(o.Type) == "" {
			continue
		}

		def, ok := config.MatchObjectionType(o.Type)
		if !ok {
			a.logger.Warn("Objection type outside taxonomy, storing as Other",
				"raw_type", o.Type, "call_id", call.ID)
			def = config.OtherObjection()
		}

		obj := &models.Objection{
			ID:               uuid.NewString(),
			CallID:           call.ID,
			TenantID:         call.TenantID,
			CloserID:         call.CloserID,
			Type:             def.Label,
			Text:             text,
			TimestampSeconds: int(o.TimestampSeconds),
			Resolved:         o.Resolved,
			ResolutionText:   strings.TrimSpace(o.ResolutionText),
		}
		if err := a.objections.Insert(ctx, obj); err != nil {
			a.logger.Error("Objection insert failed", "call_id", call.ID, "error", err)
		}
	}
}

func (a *Analyzer) recordCost(ctx context.Context, call *models.Call, comp *Completion, elapsed time.Duration) {
	inputCost := float64(comp.InputTokens) / 1e6 * a.cfg.InputRatePerMTok
	outputCost := float64(comp.OutputTokens) / 1e6 * a.cfg.OutputRatePerMTok

	entry := &models.CostEntry{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		TenantID:      call.TenantID,
		CallID:        call.ID,
		Model:         a.cfg.Model,
		InputTokens:   comp.InputTokens,
		OutputTokens:  comp.OutputTokens,
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		TotalCostUSD:  inputCost + outputCost,
		DurationMS:    elapsed.Milliseconds(),
	}
	if err := a.costs.Insert(ctx, entry); err != nil {
		a.logger.Warn("Cost ledger insert failed", "call_id", call.ID, "error", err)
	}
}

// markError flags the call as failed analysis. Attendance is untouched.
func (a *Analyzer) markError(ctx context.Context, call *models.Call, detail string, cause error) {
	upd := &models.CallUpdate{ProcessingStatus: models.Ptr(models.ProcessingError)}
	if err := a.calls.Update(ctx, call.TenantID, call.ID, upd); err != nil {
		a.logger.Error("Failed to mark processing error", "call_id", call.ID, "error", err)
	} else {
		call.ProcessingStatus = models.ProcessingError
	}
	a.recorder.Error(ctx, call.TenantID, audit.EntityCall, call.ID,
		models.TriggerSourceAIProcessing, detail, models.Metadata{"error": cause.Error()})
}

func setIfPresent(dst **string, value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return
	}
	*dst = &trimmed
}
