package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/casefile/internal/runtime"
	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/consent"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/enrichment"
	"github.com/aretw0/casefile/pkg/gateway/gatewaytest"
	"github.com/aretw0/casefile/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEngine records calls and answers from canned values.
type MockEngine struct {
	mu        sync.Mutex
	ctx       domain.SessionContext
	invokeErr error
	formErr   error
	forms     []FormSubmission
}

func newMock() *MockEngine {
	return &MockEngine{ctx: domain.NewSessionContext("call-1", "+15550001111", time.Now())}
}

func (m *MockEngine) StartCall(ctx context.Context, callID, ani string) (runtime.Start, error) {
	if callID == "dup" {
		return runtime.Start{}, fmt.Errorf("%w: dup", domain.ErrCallExists)
	}
	return runtime.Start{Step: domain.StepGreeting, Greeting: "Hi", Context: domain.NewSessionContext(callID, ani, time.Now())}, nil
}

func (m *MockEngine) Invoke(ctx context.Context, callID string, tool domain.Tool, args map[string]any) (runtime.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.invokeErr != nil {
		return runtime.Result{}, m.invokeErr
	}
	next := m.ctx.Clone()
	next.Step = domain.StepEmailConfirm
	next.History = append(next.History, domain.StepEmailConfirm)
	next.IdentityConfirmed = true
	m.ctx = next
	return runtime.Result{Outcome: runtime.Outcome{Step: next.Step, Message: "ok"}, Context: next}, nil
}

func (m *MockEngine) Hangup(ctx context.Context, callID string) (domain.PostCallPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.ctx.Clone()
	next.Step = domain.StepWrapUp
	return domain.NewPostCallPayload(next, time.Now()), nil
}

func (m *MockEngine) Get(ctx context.Context, callID string) (domain.SessionContext, error) {
	if callID != m.ctx.CallID {
		return domain.SessionContext{}, domain.ErrCallNotFound
	}
	return m.ctx, nil
}

func (m *MockEngine) DeliverForm(ctx context.Context, callID, token, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms = append(m.forms, FormSubmission{CallID: callID, Token: token, Email: email})
	return m.formErr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStartCall(t *testing.T) {
	h := NewHandler(newMock())

	w := do(t, h, http.MethodPost, "/calls", `{"call_id":"c1","ani":"+15550001111"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	var start runtime.Start
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &start))
	assert.Equal(t, domain.StepGreeting, start.Step)
	assert.Equal(t, "c1", start.Context.CallID)

	w = do(t, h, http.MethodPost, "/calls", `{"call_id":"dup","ani":"+1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"call_exists"`)

	w = do(t, h, http.MethodPost, "/calls", `{"call_id":"c2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoke_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{domain.ErrToolNotAllowed, http.StatusConflict, "tool_not_allowed"},
		{domain.ErrCallTerminated, http.StatusConflict, "call_terminated"},
		{domain.ErrInvalidAnswer, http.StatusBadRequest, "invalid_answer"},
		{domain.ErrUnknownTool, http.StatusNotFound, "unknown_tool"},
		{domain.ErrCallNotFound, http.StatusNotFound, "call_not_found"},
		{fmt.Errorf("redis down"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			m := newMock()
			m.invokeErr = fmt.Errorf("wrapped: %w", tc.err)
			w := do(t, NewHandler(m), http.MethodPost, "/calls/call-1/tools/confirm_identity", `{"args":{"confirmed":true}}`)
			assert.Equal(t, tc.want, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestInvoke_UnknownToolIsNotFound(t *testing.T) {
	m := newMock()
	h := NewHandler(m)

	w := do(t, h, http.MethodPost, "/calls/call-1/tools/transfer_to_agent", `{"args":{}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unknown_tool", body.Code)

	// The engine never saw it.
	assert.Equal(t, domain.StepGreeting, m.ctx.Step)
}

func TestRequestValidation(t *testing.T) {
	h := NewHandler(newMock())

	tests := []struct {
		name string
		path string
		body string
	}{
		{"ani is not a string", "/calls", `{"call_id":"c1","ani":42}`},
		{"ani missing", "/calls", `{"call_id":"c1"}`},
		{"args is not an object", "/calls/call-1/tools/confirm_identity", `{"args":[true]}`},
		{"call_id missing", "/webhooks/sms-form", `{"email":"x@example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "bad_request", body.Code)
		})
	}
}

func TestOpenAPISpec(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	for _, path := range []string{"/calls", "/calls/{callID}", "/calls/{callID}/events", "/calls/{callID}/tools/{tool}", "/calls/{callID}/hangup", "/webhooks/sms-form", "/health"} {
		assert.NotNil(t, doc.Paths.Value(path), path)
	}

	h := NewHandler(newMock())
	w := do(t, h, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "operationId: invokeTool")

	w = do(t, h, http.MethodGet, "/swagger", "")
	assert.Contains(t, w.Body.String(), "SwaggerUIBundle")
}

func TestGetCall(t *testing.T) {
	h := NewHandler(newMock())

	w := do(t, h, http.MethodGet, "/calls/call-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"call_id":"call-1"`)

	w = do(t, h, http.MethodGet, "/calls/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSMSFormWebhook(t *testing.T) {
	m := newMock()
	h := NewHandler(m)

	w := do(t, h, http.MethodPost, "/webhooks/sms-form", `{"call_id":"call-1","token":"tok","email":"fox@example.com"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	form := url.Values{"call_id": {"call-1"}, "email": {"dana@example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sms-form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	m.formErr = fmt.Errorf("%w: call-1", domain.ErrNoActiveWait)
	w = do(t, h, http.MethodPost, "/webhooks/sms-form", `{"call_id":"call-1","email":"late@example.com"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/webhooks/sms-form", `{"email":"x@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Len(t, m.forms, 3)
	assert.Equal(t, "tok", m.forms[0].Token)
	assert.Equal(t, "dana@example.com", m.forms[1].Email)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "casefile_tool_invocations_total 1")
	})
	h := NewHandler(newMock(), WithMetricsHandler(metrics), WithVersion("1.2.3"))

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
	assert.Contains(t, w.Body.String(), `"api_version":"1.0.0"`)

	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Contains(t, w.Body.String(), "casefile_tool_invocations_total")
}

func TestSubscribeEvents_Call(t *testing.T) {
	h := NewHandler(newMock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest(http.MethodGet, "/calls/call-1/events?watch=step,identity_confirmed", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(wSub, reqSub)
	}()

	time.Sleep(100 * time.Millisecond) // Wait for subscription to register

	w := do(t, h, http.MethodPost, "/calls/call-1/tools/confirm_identity", `{"args":{"confirmed":true}}`)
	require.Equal(t, http.StatusOK, w.Code)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	output := wSub.Body.String()
	assert.Contains(t, output, "event: ping")
	assert.Contains(t, output, `"step":"email_confirm"`)
	assert.Contains(t, output, `"identity_confirmed":true`)
}

func TestKeepFilter(t *testing.T) {
	msg := `{"call_id":"c","fields":{"zb_status":"valid"}}`
	assert.True(t, keep(msg, nil))
	assert.True(t, keep(msg, []string{"fields"}))
	assert.True(t, keep(msg, []string{"zb_status"}))
	assert.False(t, keep(msg, []string{"step", "history"}))
}

// A real engine behind the router: greeting to email_confirm and hangup.
func TestServer_EndToEnd(t *testing.T) {
	fake := gatewaytest.New()
	fake.Phone = domain.ReversePhoneResult{OwnerName: "Fox Mulder", Email: "fox@example.com", LineType: domain.LineTypeMobile}
	sink := memory.NewSink()
	engine := runtime.NewEngine(
		session.NewManager(memory.NewCallStateStore()),
		enrichment.New(memory.NewCallerStore(), fake),
		consent.NewLedger(memory.NewConsentStore()),
		fake,
		runtime.WithPostCallSink(sink),
	)
	h := NewHandler(engine)

	w := do(t, h, http.MethodPost, "/calls", `{"call_id":"e2e","ani":"+15550001111"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"owner_name":"Fox Mulder"`)

	w = do(t, h, http.MethodPost, "/calls/e2e/tools/confirm_identity", `{"args":{"confirmed":true}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"step":"email_confirm"`)

	w = do(t, h, http.MethodPost, "/calls/e2e/tools/validate_address", `{"args":{}}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/calls/e2e/hangup", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"step":"wrap_up"`)

	_, ok := sink.Get("e2e")
	assert.True(t, ok)

	w = do(t, h, http.MethodPost, "/calls/e2e/tools/confirm_identity", `{"args":{"confirmed":true}}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}
