package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/payments"
	"github.com/callscope/callscope/pkg/pushchan"
	"github.com/callscope/callscope/pkg/transcript"
	"github.com/callscope/callscope/pkg/warehouse"
)

type fakeNotifier struct {
	mu      sync.Mutex
	tenants []string
	err     error
}

func (f *fakeNotifier) HandleNotification(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = append(f.tenants, tenantID)
	return f.err
}

func (f *fakeNotifier) notified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tenants...)
}

type processedDelivery struct {
	provider string
	body     string
	hints    transcript.Hints
}

type canonicalDelivery struct {
	meetingID string
	hints     transcript.Hints
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []processedDelivery
	canonical []canonicalDelivery
	err       error
}

func (f *fakeProcessor) Process(_ context.Context, provider string, payload []byte, hints transcript.Hints) (*transcript.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, processedDelivery{provider: provider, body: string(payload), hints: hints})
	if f.err != nil {
		return nil, f.err
	}
	return &transcript.Result{Outcome: transcript.OutcomeProcessed}, nil
}

func (f *fakeProcessor) ProcessCanonical(_ context.Context, tr *models.CanonicalTranscript, hints transcript.Hints) (*transcript.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canonical = append(f.canonical, canonicalDelivery{meetingID: tr.MeetingID, hints: hints})
	if f.err != nil {
		return nil, f.err
	}
	return &transcript.Result{Outcome: transcript.OutcomeProcessed}, nil
}

func (f *fakeProcessor) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

func (f *fakeProcessor) canonicalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.canonical)
}

type paymentCall struct {
	tenantID string
	req      *payments.Request
}

type fakePayments struct {
	mu     sync.Mutex
	calls  []paymentCall
	result *payments.Result
	err    error
}

func (f *fakePayments) Process(_ context.Context, tenantID string, req *payments.Request) (*payments.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, paymentCall{tenantID: tenantID, req: req})
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTenantSource struct {
	byID map[string]*models.Tenant
}

func (f *fakeTenantSource) GetByID(_ context.Context, id string) (*models.Tenant, error) {
	if t, ok := f.byID[id]; ok {
		return t, nil
	}
	return nil, warehouse.ErrNotFound
}

type webhookFixture struct {
	server    *Server
	notifier  *fakeNotifier
	processor *fakeProcessor
	payments  *fakePayments
	tenants   *fakeTenantSource
	registry  *pushchan.Registry
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	fx := &webhookFixture{
		notifier:  &fakeNotifier{},
		processor: &fakeProcessor{},
		payments:  &fakePayments{result: &payments.Result{Action: "new_close"}},
		tenants:   &fakeTenantSource{byID: map[string]*models.Tenant{}},
		registry:  pushchan.NewRegistry(),
	}
	fx.server = NewServer(Deps{
		Config:      &config.Config{Server: &config.ServerConfig{}},
		Calendar:    fx.notifier,
		Transcripts: fx.processor,
		Payments:    fx.payments,
		Tenants:     fx.tenants,
		Channels:    fx.registry,
	})
	return fx
}

func (fx *webhookFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fx.server.echo.ServeHTTP(rec, req)
	return rec
}

func calendarPush(channelID, token, state string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar", nil)
	if channelID != "" {
		req.Header.Set(headerChannelID, channelID)
	}
	if token != "" {
		req.Header.Set(headerChannelToken, token)
	}
	req.Header.Set(headerResourceState, state)
	return req
}

func TestCalendarWebhook(t *testing.T) {
	t.Run("sync handshake is acknowledged without processing", func(t *testing.T) {
		fx := newWebhookFixture(t)
		rec := fx.do(calendarPush("chan-1", "tenant-1", resourceStateSync))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, fx.notifier.notified())
	})

	t.Run("notification routes by channel token", func(t *testing.T) {
		fx := newWebhookFixture(t)
		rec := fx.do(calendarPush("chan-1", "tenant-1", "exists"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"tenant-1"}, fx.notifier.notified())
	})

	t.Run("missing token", func(t *testing.T) {
		fx := newWebhookFixture(t)
		rec := fx.do(calendarPush("chan-1", "", "exists"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, fx.notifier.notified())
	})

	t.Run("token mismatching the registered channel is rejected", func(t *testing.T) {
		fx := newWebhookFixture(t)
		fx.registry.Put(pushchan.Subscription{ChannelID: "chan-1", TenantID: "tenant-2", CloserID: "closer-1"})

		rec := fx.do(calendarPush("chan-1", "tenant-1", "exists"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, fx.notifier.notified())
	})

	t.Run("token matching the registered channel passes", func(t *testing.T) {
		fx := newWebhookFixture(t)
		fx.registry.Put(pushchan.Subscription{ChannelID: "chan-1", TenantID: "tenant-1", CloserID: "closer-1"})

		rec := fx.do(calendarPush("chan-1", "tenant-1", "exists"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"tenant-1"}, fx.notifier.notified())
	})

	t.Run("unknown channel id passes", func(t *testing.T) {
		// The registry is empty right after a restart; the token still
		// scopes the refresh to one tenant.
		fx := newWebhookFixture(t)
		rec := fx.do(calendarPush("chan-unseen", "tenant-1", "exists"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"tenant-1"}, fx.notifier.notified())
	})

	t.Run("processing failure is a server error", func(t *testing.T) {
		fx := newWebhookFixture(t)
		fx.notifier.err = errors.New("provider unreachable")

		rec := fx.do(calendarPush("chan-1", "tenant-1", "exists"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestTranscriptWebhook(t *testing.T) {
	t.Run("acknowledges and processes in the background", func(t *testing.T) {
		fx := newWebhookFixture(t)
		body := `{"id": 918273, "recorded_by": {"email": "tyler@acme.io"}}`

		req := httptest.NewRequest(http.MethodPost, "/webhooks/transcript/fathom", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := fx.do(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": "accepted"}`, rec.Body.String())

		require.Eventually(t, func() bool { return fx.processor.processedCount() == 1 },
			time.Second, 10*time.Millisecond)

		fx.processor.mu.Lock()
		defer fx.processor.mu.Unlock()
		got := fx.processor.processed[0]
		assert.Equal(t, "fathom", got.provider)
		assert.Equal(t, body, got.body)
		assert.Equal(t, transcript.Hints{}, got.hints)
	})

	t.Run("empty body", func(t *testing.T) {
		fx := newWebhookFixture(t)
		rec := fx.do(httptest.NewRequest(http.MethodPost, "/webhooks/transcript/fathom", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, fx.processor.processedCount())
	})

	t.Run("processing failure does not change the acknowledgement", func(t *testing.T) {
		fx := newWebhookFixture(t)
		fx.processor.err = errors.New("no adapter")

		req := httptest.NewRequest(http.MethodPost, "/webhooks/transcript/zoom", bytes.NewBufferString(`{}`))
		rec := fx.do(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Eventually(t, func() bool { return fx.processor.processedCount() == 1 },
			time.Second, 10*time.Millisecond)
	})
}

func paymentRequest(tenantID, secret string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/"+tenantID, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req
}

func TestPaymentWebhook(t *testing.T) {
	seed := func(fx *webhookFixture) {
		fx.tenants.byID["tenant-1"] = &models.Tenant{
			ID:            "tenant-1",
			Name:          "Acme Coaching",
			Status:        models.StatusActive,
			WebhookSecret: "whsec_abc",
		}
	}
	body := payments.Request{
		ProspectEmail: "amy@pond.io",
		Amount:        8000,
		PaymentType:   "full",
		PaymentDate:   "2026-03-04",
	}

	t.Run("applies the payment and returns the action", func(t *testing.T) {
		fx := newWebhookFixture(t)
		seed(fx)

		rec := fx.do(paymentRequest("tenant-1", "whsec_abc", body))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"action": "new_close"}`, rec.Body.String())

		require.Len(t, fx.payments.calls, 1)
		got := fx.payments.calls[0]
		assert.Equal(t, "tenant-1", got.tenantID)
		assert.Equal(t, "amy@pond.io", got.req.ProspectEmail)
		assert.InDelta(t, 8000.0, got.req.Amount, 0.001)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		fx := newWebhookFixture(t)
		rec := fx.do(paymentRequest("tenant-9", "whsec_abc", body))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		fx := newWebhookFixture(t)
		seed(fx)
		rec := fx.do(paymentRequest("tenant-1", "whsec_wrong", body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, fx.payments.calls)
	})

	t.Run("missing secret", func(t *testing.T) {
		fx := newWebhookFixture(t)
		seed(fx)
		rec := fx.do(paymentRequest("tenant-1", "", body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tenant without a configured secret rejects everything", func(t *testing.T) {
		fx := newWebhookFixture(t)
		fx.tenants.byID["tenant-1"] = &models.Tenant{ID: "tenant-1", Status: models.StatusActive}

		rec := fx.do(paymentRequest("tenant-1", "whsec_abc", body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("inactive tenant", func(t *testing.T) {
		fx := newWebhookFixture(t)
		fx.tenants.byID["tenant-1"] = &models.Tenant{
			ID:            "tenant-1",
			Status:        models.StatusInactive,
			WebhookSecret: "whsec_abc",
		}

		rec := fx.do(paymentRequest("tenant-1", "whsec_abc", body))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, fx.payments.calls)
	})

	t.Run("validation failure from the pipeline", func(t *testing.T) {
		fx := newWebhookFixture(t)
		seed(fx)
		fx.payments.err = lifecycleValidationErr()

		rec := fx.do(paymentRequest("tenant-1", "whsec_abc", payments.Request{}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
