// Package payments reconciles inbound payment events against the call
// ledger: it maintains prospect totals, closes the matching call or
// records an additional payment, and unwinds closes on refunds.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/pkg/alerts"
	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/warehouse"
)

// Response actions returned to the payment webhook caller.
const (
	ActionNewClose          = "new_close"
	ActionAdditionalPayment = "additional_payment"
	ActionRefund            = "refund"
	ActionPaymentRecorded   = "payment_recorded"
)

// Request is the payment webhook body. The tenant is authenticated
// upstream and passed separately.
type Request struct {
	ProspectEmail string  `json:"prospect_email"`
	ProspectName  string  `json:"prospect_name"`
	Amount        float64 `json:"amount"`
	PaymentType   string  `json:"payment_type"`
	PaymentDate   string  `json:"payment_date"`
	ProductName   string  `json:"product_name"`
	Notes         string  `json:"notes"`
}

// Result tells the payment provider what the event became.
type Result struct {
	Action string `json:"action"`
}

// CallSource is the slice of the call store the payment pipeline needs.
type CallSource interface {
	lifecycle.CallStore
	ListByProspectStates(ctx context.Context, tenantID, prospectEmail string, states []models.AttendanceState) ([]models.Call, error)
}

// ProspectStore maintains the per-prospect payment aggregates.
type ProspectStore interface {
	GetByEmail(ctx context.Context, tenantID, email string) (*models.Prospect, error)
	Insert(ctx context.Context, p *models.Prospect) error
	FillName(ctx context.Context, tenantID, email, name string) error
	ApplyPayment(ctx context.Context, tenantID, email string, revenueDelta, cashDelta float64, paidAt string) error
}

// Deps wires the payment service.
type Deps struct {
	Calls     CallSource
	Prospects ProspectStore
	Machine   *lifecycle.Machine
	Recorder  *audit.Recorder
	Alerts    *alerts.Service
}

// Service applies one payment event at a time. Stateless between calls.
type Service struct {
	calls     CallSource
	prospects ProspectStore
	machine   *lifecycle.Machine
	recorder  *audit.Recorder
	alerts    *alerts.Service
	logger    *slog.Logger
}

func NewService(deps Deps) *Service {
	return &Service{
		calls:     deps.Calls,
		prospects: deps.Prospects,
		machine:   deps.Machine,
		recorder:  deps.Recorder,
		alerts:    deps.Alerts,
		logger:    slog.With("component", "payments"),
	}
}

// payment is the validated, normalized form of a Request.
type payment struct {
	email   string
	name    string
	amount  float64
	ptype   models.PaymentType
	date    string
	product string
	notes   string
}

func normalize(req *Request) (*payment, error) {
	email := models.NormalizeEmail(req.ProspectEmail)
	if email == "" {
		return nil, lifecycle.NewValidationError("prospect_email", "is required")
	}

	amount := math.Abs(req.Amount)
	if amount == 0 {
		return nil, lifecycle.NewValidationError("amount", "must be non-zero")
	}

	ptype := models.PaymentType(strings.ToLower(strings.TrimSpace(req.PaymentType)))
	if !ptype.IsValid() {
		return nil, lifecycle.NewValidationError("payment_type", fmt.Sprintf("unknown type %q", req.PaymentType))
	}

	date := strings.TrimSpace(req.PaymentDate)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	return &payment{
		email:   email,
		name:    strings.TrimSpace(req.ProspectName),
		amount:  amount,
		ptype:   ptype,
		date:    date,
		product: strings.TrimSpace(req.ProductName),
		notes:   strings.TrimSpace(req.Notes),
	}, nil
}

// Process runs the reconciliation steps for one payment event.
func (s *Service) Process(ctx context.Context, tenantID string, req *Request) (*Result, error) {
	p, err := normalize(req)
	if err != nil {
		return nil, err
	}

	if err := s.upsertProspect(ctx, tenantID, p); err != nil {
		s.recorder.Error(ctx, tenantID, audit.EntityProspect, p.email,
			models.TriggerSourcePaymentWebhook, string(p.ptype), models.Metadata{"error": err.Error()})
		return nil, err
	}

	call, err := s.latestConversation(ctx, tenantID, p.email)
	if err != nil {
		return nil, fmt.Errorf("locating call for payment: %w", err)
	}
	if call == nil {
		s.logger.Info("Payment with no matching call recorded against prospect only",
			"tenant_id", tenantID, "prospect_email", p.email, "amount", p.amount)
		s.recorder.PaymentReceived(ctx, tenantID, "", string(p.ptype), models.Metadata{
			"note":           "no_matching_call",
			"prospect_email": p.email,
			"amount":         p.amount,
		})
		return &Result{Action: ActionPaymentRecorded}, nil
	}

	switch {
	case call.AttendanceStatus == models.AttendanceClosedWon && !p.ptype.IsNegative():
		return s.additionalPayment(ctx, call, p)
	case p.ptype.IsNegative():
		return s.applyRefund(ctx, call, p)
	default:
		return s.closeCall(ctx, call, p)
	}
}

// upsertProspect finds or creates the prospect row and applies the
// payment to its aggregates.
func (s *Service) upsertProspect(ctx context.Context, tenantID string, p *payment) error {
	existing, err := s.prospects.GetByEmail(ctx, tenantID, p.email)
	switch {
	case err == nil:
		if p.name != "" && existing.Name == "" {
			if err := s.prospects.FillName(ctx, tenantID, p.email, p.name); err != nil {
				s.logger.Warn("Prospect name fill failed", "prospect_email", p.email, "error", err)
			}
		}
	case errors.Is(err, warehouse.ErrNotFound):
		prospect := &models.Prospect{
			ID:       uuid.NewString(),
			TenantID: tenantID,
			Email:    p.email,
			Name:     p.name,
			Status:   models.StatusActive,
		}
		if err := s.prospects.Insert(ctx, prospect); err != nil {
			return fmt.Errorf("creating prospect for payment: %w", err)
		}
	default:
		return fmt.Errorf("loading prospect for payment: %w", err)
	}

	delta := p.amount
	if p.ptype.IsNegative() {
		delta = -p.amount
	}
	if err := s.prospects.ApplyPayment(ctx, tenantID, p.email, delta, delta, p.date); err != nil {
		return fmt.Errorf("applying prospect payment totals: %w", err)
	}
	return nil
}

// latestConversation returns the most recent call that actually reached a
// conversation-bearing state, or nil when the prospect has none.
func (s *Service) latestConversation(ctx context.Context, tenantID, email string) (*models.Call, error) {
	candidates, err := s.calls.ListByProspectStates(ctx, tenantID, email, config.ConversationalPriorStates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := &candidates[0]
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		ct, bt := c.StartTime(), best.StartTime()
		switch {
		case ct.IsZero() && bt.IsZero():
			if c.CreatedAt > best.CreatedAt {
				best = c
			}
		case bt.IsZero(), ct.After(bt):
			if !ct.IsZero() {
				best = c
			}
		}
	}
	return best, nil
}

// additionalPayment adds cash to an already-closed call.
func (s *Service) additionalPayment(ctx context.Context, call *models.Call, p *payment) (*Result, error) {
	upd := &models.CallUpdate{
		CashCollected: models.Ptr(call.CashCollected + p.amount),
	}
	if p.product != "" {
		upd.ProductName = &p.product
	}
	if err := s.calls.Update(ctx, call.TenantID, call.ID, upd); err != nil {
		return nil, fmt.Errorf("recording additional payment: %w", err)
	}

	s.recorder.PaymentReceived(ctx, call.TenantID, call.ID, string(p.ptype), models.Metadata{
		"amount":         p.amount,
		"prospect_email": p.email,
		"note":           "additional_payment",
	})
	s.logger.Info("Additional payment on closed call",
		"tenant_id", call.TenantID, "call_id", call.ID, "amount", p.amount)
	return &Result{Action: ActionAdditionalPayment}, nil
}

// applyRefund reduces collected cash, floored at zero, and unwinds the
// close when a refund empties it.
func (s *Service) applyRefund(ctx context.Context, call *models.Call, p *payment) (*Result, error) {
	newCash := call.CashCollected - p.amount
	if newCash < 0 {
		newCash = 0
	}
	upd := &models.CallUpdate{CashCollected: &newCash}

	reverted := false
	if newCash == 0 && call.AttendanceStatus == models.AttendanceClosedWon {
		// Closed - Won is terminal in the transition table, so the unwind
		// is a direct write, logged as such.
		reverted = true
		upd.AttendanceStatus = models.Ptr(models.AttendanceLost)
		upd.CallOutcome = models.Ptr(models.OutcomeLost)
		upd.LostReason = models.Ptr(fmt.Sprintf("%s of $%.2f", p.ptype, p.amount))
	}

	if err := s.calls.Update(ctx, call.TenantID, call.ID, upd); err != nil {
		return nil, fmt.Errorf("applying refund: %w", err)
	}

	if reverted {
		s.logger.Warn("Refund emptied a closed call, outcome reverted to Lost",
			"tenant_id", call.TenantID, "call_id", call.ID, "type", string(p.ptype))
		s.recorder.FieldUpdate(ctx, call.TenantID, audit.EntityCall, call.ID,
			"attendance_status", string(models.AttendanceClosedWon), string(models.AttendanceLost),
			models.TriggerSourcePaymentWebhook, string(p.ptype))
		call.AttendanceStatus = models.AttendanceLost
		call.CallOutcome = models.OutcomeLost
	}
	call.CashCollected = newCash

	s.recorder.PaymentReceived(ctx, call.TenantID, call.ID, string(p.ptype), models.Metadata{
		"amount":         -p.amount,
		"prospect_email": p.email,
	})

	if p.ptype == models.PaymentChargeback {
		s.alerts.Notify(ctx, alerts.Alert{
			Severity:        models.SeverityHigh,
			Component:       "payments",
			TenantID:        call.TenantID,
			CallID:          call.ID,
			Summary:         "Chargeback received",
			Detail:          fmt.Sprintf("$%.2f chargeback from %s", p.amount, p.email),
			SuggestedAction: "Review the dispute with the payment provider and confirm the call outcome",
		})
	}

	return &Result{Action: ActionRefund}, nil
}

// closeCall transitions the matched call to Closed - Won with the payment
// batched into the same write. A rejected transition falls back to a
// direct write so the money is never dropped.
func (s *Service) closeCall(ctx context.Context, call *models.Call, p *payment) (*Result, error) {
	trigger := models.TriggerPaymentReceived
	if call.AttendanceStatus == models.AttendanceDeposit {
		trigger = models.TriggerPaymentReceivedFull
	}

	upd := &models.CallUpdate{
		CallOutcome:      models.Ptr(models.OutcomeClosedWon),
		ProcessingStatus: models.Ptr(models.ProcessingComplete),
		CashCollected:    models.Ptr(call.CashCollected + p.amount),
		RevenueGenerated: &p.amount,
		DateClosed:       &p.date,
		PaymentPlan:      models.Ptr(p.ptype.PlanLabel()),
	}
	if p.product != "" {
		upd.ProductName = &p.product
	}

	metadata := models.Metadata{
		"amount":         p.amount,
		"prospect_email": p.email,
	}
	if p.notes != "" {
		metadata["notes"] = p.notes
	}

	err := s.machine.Transition(ctx, call, models.AttendanceClosedWon, trigger,
		models.TriggerSourcePaymentWebhook, string(p.ptype), upd)
	switch {
	case err == nil:
	case lifecycle.IsTransitionError(err):
		s.logger.Warn("Close transition rejected, applying direct write fallback",
			"tenant_id", call.TenantID, "call_id", call.ID,
			"from", string(call.AttendanceStatus), "error", err)
		upd.AttendanceStatus = models.Ptr(models.AttendanceClosedWon)
		if err := s.calls.Update(ctx, call.TenantID, call.ID, upd); err != nil {
			return nil, fmt.Errorf("close fallback write: %w", err)
		}
		call.AttendanceStatus = models.AttendanceClosedWon
		call.CallOutcome = models.OutcomeClosedWon
		metadata["fallback"] = true
	default:
		return nil, fmt.Errorf("closing call from payment: %w", err)
	}

	s.recorder.PaymentClose(ctx, call.TenantID, call.ID, string(p.ptype), metadata)
	s.logger.Info("Call closed from payment",
		"tenant_id", call.TenantID, "call_id", call.ID,
		"amount", p.amount, "trigger", string(trigger))
	return &Result{Action: ActionNewClose}, nil
}
