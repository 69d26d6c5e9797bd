package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/consent"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/gateway"
	"github.com/aretw0/casefile/pkg/observability"
	"github.com/aretw0/casefile/pkg/ports"
	"github.com/aretw0/casefile/pkg/session"
	"github.com/aretw0/casefile/pkg/smswait"
	"github.com/google/uuid"
)

// CallerCache is the slice of the enrichment cache the engine needs.
type CallerCache interface {
	Prepare(ctx context.Context, ani string) (domain.CallerRecord, domain.RecordSource, error)
	Upsert(ctx context.Context, ani string, patch domain.CallerPatch) (domain.CallerRecord, error)
}

// CallerFile is what the conversational layer knows about the caller when
// the call starts.
type CallerFile struct {
	OwnerName        string               `json:"owner_name,omitempty"`
	CandidateEmail   string               `json:"candidate_email,omitempty"`
	CandidateAddress string               `json:"candidate_address,omitempty"`
	LineType         string               `json:"line_type,omitempty"`
	SMSEligible      bool                 `json:"sms_eligible"`
	RecordSource     domain.RecordSource  `json:"record_source"`
	Deltas           []domain.Delta       `json:"delta_flags,omitempty"`
	Extras           *domain.CallerExtras `json:"extras,omitempty"`
}

func newCallerFile(rec domain.CallerRecord, source domain.RecordSource) CallerFile {
	return CallerFile{
		OwnerName:        rec.OwnerName,
		CandidateEmail:   rec.BestEmail(),
		CandidateAddress: rec.BestAddress(),
		LineType:         rec.LineType,
		SMSEligible:      rec.SMSEligible(),
		RecordSource:     source,
		Deltas:           rec.DeltaFlags,
		Extras:           rec.Extras,
	}
}

// Start is returned when a call begins.
type Start struct {
	Step     domain.Step           `json:"step"`
	Greeting string                `json:"greeting"`
	File     CallerFile            `json:"caller"`
	Context  domain.SessionContext `json:"context"`
}

// Result is returned for every tool invocation.
type Result struct {
	Outcome
	Context domain.SessionContext `json:"context"`
}

// Engine runs the I/O around Transition: cache preparation at call start,
// gateway checks, consent rows and gated sends during the call, and the
// post-call fold at hangup. Every invocation runs under the call lock.
type Engine struct {
	sessions *session.Manager
	cache    CallerCache
	ledger   *consent.Ledger
	guard    *consent.Guard
	gw       ports.Gateway
	waits    *smswait.Registry

	policy     Policy
	smsTimeout time.Duration
	formURL    string
	sink       ports.PostCallSink
	recheck    ports.RecheckScheduler
	hooks      domain.LifecycleHooks
	now        func() time.Time
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithSMSWait bounds the wait for the SMS form.
func WithSMSWait(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.smsTimeout = d
	}
}

// WithFormURL sets the base URL of the email form linked in the SMS.
func WithFormURL(u string) EngineOption {
	return func(e *Engine) {
		e.formURL = u
	}
}

// WithWaitRegistry shares a registry with the webhook receiver.
func WithWaitRegistry(r *smswait.Registry) EngineOption {
	return func(e *Engine) {
		e.waits = r
	}
}

// WithPostCallSink receives the payload of every finished call.
func WithPostCallSink(s ports.PostCallSink) EngineOption {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithRecheckScheduler queues calls whose email came back unknown.
func WithRecheckScheduler(s ports.RecheckScheduler) EngineOption {
	return func(e *Engine) {
		e.recheck = s
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records step visits and tool invocations.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine wires an engine. Sends always go through a consent guard built
// over ledger and gw.
func NewEngine(sessions *session.Manager, cache CallerCache, ledger *consent.Ledger, gw ports.Gateway, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions:   sessions,
		cache:      cache,
		ledger:     ledger,
		gw:         gw,
		policy:     DefaultPolicy(),
		smsTimeout: smswait.DefaultTimeout,
		formURL:    "https://forms.casefile.local/email",
		now:        time.Now,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.policy = e.policy.withDefaults()
	if e.waits == nil {
		e.waits = smswait.New(smswait.WithLogger(e.logger), smswait.WithMetrics(e.metrics))
	}
	e.guard = consent.NewGuard(ledger, gw, gw, consent.WithGuardLogger(e.logger))
	return e
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// StartCall prepares the caller record and opens the call at greeting.
// A cache failure never blocks the call; it starts with an empty file.
func (e *Engine) StartCall(ctx context.Context, callID, ani string) (Start, error) {
	ani = strings.TrimSpace(ani)
	if ani == "" {
		return Start{}, fmt.Errorf("%w: ani is required", domain.ErrInvalidAnswer)
	}
	if callID == "" {
		callID = uuid.NewString()
	}

	rec, source, err := e.cache.Prepare(ctx, ani)
	if err != nil {
		e.logger.Warn("Caller record unavailable, starting with an empty file",
			"call_id", callID,
			"ani", ani,
			"err", err,
		)
		rec, source = domain.CallerRecord{ANI: ani}, domain.SourceNew
	}

	sc := domain.NewSessionContext(callID, ani, e.now()).ApplyCallerRecord(rec, source)
	if err := e.sessions.Create(ctx, sc); err != nil {
		return Start{}, err
	}

	e.logger.Info("Call started", "call_id", callID, "ani", ani, "record_source", source)
	e.enter(ctx, sc, "", domain.StepGreeting)

	file := newCallerFile(rec, source)
	return Start{
		Step:     sc.Step,
		Greeting: Greeting(file),
		File:     file,
		Context:  sc,
	}, nil
}

// Get returns the current context of a call.
func (e *Engine) Get(ctx context.Context, callID string) (domain.SessionContext, error) {
	return e.sessions.Load(ctx, callID)
}

// Invoke runs one tool for a call and returns the single next step. Tool
// errors leave the stored context untouched.
func (e *Engine) Invoke(ctx context.Context, callID string, tool domain.Tool, args map[string]any) (Result, error) {
	if _, err := domain.ParseTool(string(tool)); err != nil {
		e.logger.Warn("Tool refused", "call_id", callID, "tool", tool, "err", err)
		return Result{}, err
	}

	var (
		out  Outcome
		prev domain.SessionContext
	)

	next, err := e.sessions.Update(ctx, callID, func(ctx context.Context, cur domain.SessionContext) (domain.SessionContext, error) {
		prev = cur
		if cur.Terminated() {
			return cur, fmt.Errorf("%w: %s", domain.ErrCallTerminated, callID)
		}
		if !cur.Step.Accepts(tool) {
			return cur, fmt.Errorf("%w: %s at %s", domain.ErrToolNotAllowed, tool, cur.Step)
		}
		ans, err := domain.DecodeAnswer(tool, args)
		if err != nil {
			return cur, err
		}

		event := &domain.ToolEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventToolCall, CallID: callID},
			Step:      cur.Step,
			Tool:      tool,
			Input:     ans,
		}
		if e.hooks.OnToolCall != nil {
			e.hooks.OnToolCall(ctx, event)
		}

		in := e.prepare(ctx, cur, tool, ans)
		next, o, err := Transition(cur, in, e.policy)
		if err != nil {
			return cur, err
		}
		out = o
		return next, nil
	})
	if err != nil {
		e.metrics.ToolCalled(string(tool), "error")
		e.returned(ctx, callID, prev.Step, tool, "", err)
		e.logger.Warn("Tool refused", "call_id", callID, "tool", tool, "err", err)
		return Result{}, err
	}

	e.metrics.ToolCalled(string(tool), "ok")
	e.returned(ctx, callID, prev.Step, tool, next.Step, nil)
	from := prev.Step
	for _, s := range next.History[len(prev.History):] {
		e.enter(ctx, next, from, s)
		from = s
	}
	e.logger.Info("Tool invoked",
		"call_id", callID,
		"tool", tool,
		"from", prev.Step,
		"step", next.Step,
	)
	return Result{Outcome: out, Context: next}, nil
}

// prepare runs the side effects a tool needs and returns the Transition input.
// Gateway failures are folded into the input as unknown outcomes, never errors.
func (e *Engine) prepare(ctx context.Context, cur domain.SessionContext, tool domain.Tool, ans any) Input {
	in := Input{Tool: tool, Answer: ans, Now: e.now()}

	switch tool {
	case domain.ToolProcessSMSConsent:
		// A deny already on the ledger for this call stands: no new row, no text.
		if declined, err := e.ledger.Declined(ctx, cur.CallID, domain.ConsentSMS); err == nil && declined {
			in.Consent = &domain.Decision{Granted: false, At: e.now()}
			break
		}
		a, _ := ans.(domain.ConsentAnswer)
		in.Consent = e.record(ctx, cur, domain.ConsentSMS, a.Consented, domain.SMSRateDisclosure)
		if in.Consent.Granted {
			in.SMSSent = e.sendForm(ctx, cur)
		}

	case domain.ToolAwaitSMSForm:
		if !e.waits.Pending(cur.CallID) {
			break
		}
		in.FormEmail, in.FormOK = e.waits.Wait(ctx, cur.CallID, e.smsTimeout)
		if !in.FormOK {
			e.logger.Info("SMS form wait ended without an email", "call_id", cur.CallID)
		}

	case domain.ToolValidateEmail:
		if cur.WorkingEmail == "" {
			break
		}
		v, err := e.gw.ValidateEmail(ctx, cur.WorkingEmail)
		if err != nil {
			e.logger.Warn("Email validation unavailable", "call_id", cur.CallID, "err", err)
		}
		in.Email.Status, in.Email.SubStatus = gateway.ClassifyEmail(v, err)
		if in.Email.Status == domain.EmailValid && cur.IdentityMismatchFlag {
			score, err := e.gw.CorrelateIdentity(ctx, cur.WorkingEmail, cur.CandidateAddress, cur.ANI)
			if err != nil {
				e.logger.Warn("Identity correlation unavailable", "call_id", cur.CallID, "err", err)
			} else {
				in.IdentityScore = &score
			}
		}

	case domain.ToolProcessEmailConsent:
		if cur.EmailConsent != nil {
			break
		}
		if prior, found, err := e.ledger.Latest(ctx, cur.CallID, domain.ConsentEmailSend); err == nil && found {
			in.Consent = &domain.Decision{Granted: prior.Granted, At: prior.Timestamp}
			break
		}
		a, _ := ans.(domain.ConsentAnswer)
		in.Consent = e.record(ctx, cur, domain.ConsentEmailSend, a.Consented, domain.EmailSendPrompt)
		if in.Consent.Granted {
			in.MessageID = e.sendConfirmation(ctx, cur)
		}

	case domain.ToolSubmitAddress:
		a, _ := ans.(domain.SubmittedAddressAnswer)
		if raw := strings.TrimSpace(a.Address); raw != "" {
			in.Address = e.geocode(ctx, cur.CallID, raw)
		}

	case domain.ToolValidateAddress:
		in.Address = e.validateAddress(ctx, cur)
	}
	return in
}

// record appends a consent row. When the ledger cannot be written the
// decision degrades to a deny, so nothing gated is sent.
func (e *Engine) record(ctx context.Context, cur domain.SessionContext, t domain.ConsentType, granted bool, snippet string) *domain.Decision {
	rec, err := e.ledger.Record(ctx, cur.ANI, cur.CallID, t, granted, snippet)
	if err != nil {
		e.logger.Error("Consent could not be recorded, treating as declined",
			"call_id", cur.CallID,
			"type", t,
			"err", err,
		)
		return &domain.Decision{Granted: false, At: e.now()}
	}
	return &domain.Decision{Granted: rec.Granted, At: rec.Timestamp}
}

func (e *Engine) sendForm(ctx context.Context, cur domain.SessionContext) bool {
	token := e.waits.Arm(cur.CallID)
	if err := e.guard.SendSMS(ctx, cur.ANI, cur.CallID, cur.ANI, e.formLink(cur.CallID, token)); err != nil {
		e.waits.Cancel(cur.CallID)
		e.logger.Warn("SMS send failed", "call_id", cur.CallID, "err", err)
		return false
	}
	return true
}

func (e *Engine) formLink(callID, token string) string {
	q := url.Values{}
	q.Set("call_id", callID)
	q.Set("token", token)
	sep := "?"
	if strings.Contains(e.formURL, "?") {
		sep = "&"
	}
	return e.formURL + sep + q.Encode()
}

func (e *Engine) sendConfirmation(ctx context.Context, cur domain.SessionContext) string {
	to := cur.ValidatedEmail
	if to == "" {
		to = cur.WorkingEmail
	}
	if to == "" {
		return ""
	}
	id, err := e.guard.SendEmail(ctx, cur.ANI, cur.CallID, to, ConfirmationEmail(cur.OwnerName))
	if err != nil {
		e.logger.Warn("Confirmation email failed", "call_id", cur.CallID, "err", err)
		return ""
	}
	return id
}

func (e *Engine) geocode(ctx context.Context, callID, raw string) AddressCheck {
	geo, err := e.gw.Geocode(ctx, raw)
	if err != nil {
		e.logger.Warn("Geocode unavailable", "call_id", callID, "err", err)
		return AddressCheck{Outcome: domain.OutcomeUnknown}
	}
	return AddressCheck{
		Outcome:    domain.OutcomeSuccess,
		Normalized: geo.Normalized,
		Confidence: geo.Confidence,
		Lat:        geo.Lat,
		Lng:        geo.Lng,
	}
}

// validateAddress geocodes the working address if collection did not, then
// asks for its DPV code. Only an undeliverable code is a hard failure.
func (e *Engine) validateAddress(ctx context.Context, cur domain.SessionContext) AddressCheck {
	addr := cur.WorkingAddress
	if addr == "" {
		return AddressCheck{Outcome: domain.OutcomeUnknown}
	}

	check := AddressCheck{}
	normalized := addr
	if cur.GeocodeConfidence == "" {
		geo := e.geocode(ctx, cur.CallID, addr)
		if geo.Outcome == domain.OutcomeSuccess && geo.Normalized != "" {
			check = geo
			normalized = geo.Normalized
		}
	}

	code, err := e.gw.Deliverability(ctx, normalized)
	if err != nil {
		e.logger.Warn("Deliverability check unavailable", "call_id", cur.CallID, "err", err)
	}
	check.DPV = code
	check.Outcome = gateway.Classify(err, !domain.Deliverable(code))
	if err == nil && code == "" {
		check.Outcome = domain.OutcomeUnknown
	}
	return check
}

// Hangup ends the call. The first hangup moves an unfinished call to
// wrap_up, folds its validated values into the caller record, writes the
// post-call payload and queues a re-check when one is needed. Later hangups
// return the same payload and do nothing else.
func (e *Engine) Hangup(ctx context.Context, callID string) (domain.PostCallPayload, error) {
	e.waits.Cancel(callID)

	var (
		first bool
		prev  domain.SessionContext
	)
	sc, err := e.sessions.Update(ctx, callID, func(ctx context.Context, cur domain.SessionContext) (domain.SessionContext, error) {
		prev = cur
		if cur.EndedAt != nil {
			return cur, nil
		}
		first = true
		return Finish(cur, e.policy, e.now()), nil
	})
	if err != nil {
		return domain.PostCallPayload{}, err
	}
	payload := domain.NewPostCallPayload(sc, *sc.EndedAt)
	if !first {
		return payload, nil
	}

	if len(sc.History) > len(prev.History) {
		e.enter(ctx, sc, prev.Step, domain.StepWrapUp)
	}

	if _, err := e.cache.Upsert(ctx, sc.ANI, sc.CallerPatch(*sc.EndedAt)); err != nil {
		e.logger.Error("Failed to fold call into caller record", "call_id", callID, "ani", sc.ANI, "err", err)
	}
	if e.sink != nil {
		if err := e.sink.Write(ctx, payload); err != nil {
			e.logger.Error("Failed to write post-call payload", "call_id", callID, "err", err)
		}
	}
	if sc.RecheckRequired && e.recheck != nil {
		if err := e.recheck.Schedule(ctx, payload); err != nil {
			e.logger.Error("Failed to queue email re-check", "call_id", callID, "err", err)
		}
	}

	if e.hooks.OnCallEnd != nil {
		e.hooks.OnCallEnd(ctx, &domain.CallEvent{
			EventBase:        domain.EventBase{Timestamp: e.now(), Type: domain.EventCallEnd, CallID: callID},
			FollowUpRequired: sc.FollowUpRequired,
			FollowUpReason:   sc.FollowUpReason,
		})
	}
	e.logger.Info("Call ended",
		"call_id", callID,
		"follow_up_required", sc.FollowUpRequired,
		"follow_up_reason", sc.FollowUpReason,
		"recheck_required", sc.RecheckRequired,
	)
	return payload, nil
}

// DeliverForm resumes a call waiting for its SMS form. It returns
// domain.ErrNoActiveWait for late or unknown submissions.
func (e *Engine) DeliverForm(ctx context.Context, callID, token, email string) error {
	if err := e.waits.Deliver(callID, token, strings.TrimSpace(email)); err != nil {
		return err
	}
	e.logger.Info("SMS form delivered", "call_id", callID)
	return nil
}

// Waiting reports whether the call is blocked on the SMS form.
func (e *Engine) Waiting(callID string) bool {
	return e.waits.Pending(callID)
}

func (e *Engine) enter(ctx context.Context, sc domain.SessionContext, from, to domain.Step) {
	e.metrics.StepVisited(string(to))
	if e.hooks.OnStepEnter != nil {
		e.hooks.OnStepEnter(ctx, &domain.StepEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventStepEnter, CallID: sc.CallID},
			From:      from,
			Step:      to,
			Attempt:   sc.Attempts(to),
		})
	}
}

func (e *Engine) returned(ctx context.Context, callID string, at domain.Step, tool domain.Tool, next domain.Step, err error) {
	if e.hooks.OnToolReturn == nil {
		return
	}
	event := &domain.ToolEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventToolReturn, CallID: callID},
		Step:      at,
		Tool:      tool,
		Next:      next,
	}
	if err != nil {
		event.IsError = true
		event.Error = err.Error()
	}
	e.hooks.OnToolReturn(ctx, event)
}

// IsToolError reports whether err is a refusal the conversational layer caused,
// as opposed to a storage failure.
func IsToolError(err error) bool {
	return errors.Is(err, domain.ErrToolNotAllowed) ||
		errors.Is(err, domain.ErrCallTerminated) ||
		errors.Is(err, domain.ErrInvalidAnswer) ||
		errors.Is(err, domain.ErrUnknownTool)
}
