// Package assistant drives conversations between a user and the language
// model, running the tools the model asks for until it answers in text.
package assistant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/llm"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/tool"
	"github.com/zeina-health/companion/pkg/logger"
	"github.com/zeina-health/companion/pkg/metrics"
)

var (
	// ErrSessionBusy is returned when a message arrives while the previous
	// one is still being answered.
	ErrSessionBusy = errors.New("session is busy")
	// ErrSessionClosed is returned for any use of a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrToolLoop is reported when the model keeps calling tools past the
	// configured number of rounds.
	ErrToolLoop = errors.New("too many tool rounds")
)

var tracer = otel.Tracer("companion/internal/assistant")

// Dispatcher executes one tool call.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv tool.Invocation) (model.ToolResult, *model.UIPayload)
}

// EventPublisher receives session events.
type EventPublisher interface {
	PublishConversationEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// Options tunes a session.
type Options struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxToolRounds int
	History       HistoryPolicy
}

func (o Options) withDefaults() Options {
	if o.MaxToolRounds <= 0 {
		o.MaxToolRounds = 8
	}
	if o.History == nil {
		o.History = KeepAll{}
	}
	return o
}

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Client     llm.Client
	Dispatcher Dispatcher
	Roster     *Roster
	Publisher  EventPublisher
}

// Session is one conversation. Messages are answered one at a time; a
// second SendMessage while one is in flight fails with ErrSessionBusy.
type Session struct {
	id    string
	owner string
	deps  Dependencies
	opts  Options
	log   *logger.Logger

	busy sync.Mutex

	mu       sync.RWMutex
	language string
	profile  *model.User
	history  []model.Turn

	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	lastUsed atomic.Int64
}

// NewSession creates a session owned by owner. The session acts as the
// demo user until SetUserProfile is called with a profile.
func NewSession(owner, language string, deps Dependencies, opts Options, log *logger.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       uuid.Must(uuid.NewV7()).String(),
		owner:    owner,
		deps:     deps,
		opts:     opts.withDefaults(),
		language: normalizeLanguage(language),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.log = log.WithSession(s.id, owner)
	s.touch()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the id of the account that opened the session.
func (s *Session) Owner() string { return s.owner }

// Language returns the active persona language.
func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// SetLanguage switches the persona language for future turns. Past turns
// are left as they are.
func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	s.language = normalizeLanguage(lang)
	s.mu.Unlock()
	s.touch()
}

// SetUserProfile sets who is asking. nil falls back to the demo identity.
func (s *Session) SetUserProfile(u *model.User) {
	var p *model.User
	if u != nil {
		cp := *u
		p = &cp
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	s.touch()
}

// UserID returns the identity tools act as.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil || s.profile.ID == "" {
		return model.DemoUserID
	}
	return s.profile.ID
}

// History returns a copy of the committed turn log.
func (s *Session) History() []model.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Turn(nil), s.history...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed.Load() }

// IdleSince returns when the session was last used.
func (s *Session) IdleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }

// Close tears the session down. An in-flight model call is abandoned and no
// further tool runs for this session.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()
	s.publish(model.EventTypeClosed, "closed", nil)
	s.log.Info("assistant session closed")
}

// SendMessage appends text as a user turn and answers it. Model and
// network failures are not returned as errors: the reply then carries the
// apology for the active language. The only errors are ErrSessionBusy and
// ErrSessionClosed.
func (s *Session) SendMessage(ctx context.Context, text string) (*model.Reply, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	if !s.busy.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.busy.Unlock()
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	s.touch()
	defer s.touch()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.mu.RLock()
	lang := s.language
	profile := s.profile
	base := append([]model.Turn(nil), s.history...)
	s.mu.RUnlock()

	userID := model.DemoUserID
	if profile != nil && profile.ID != "" {
		userID = profile.ID
	}

	ctx, span := tracer.Start(ctx, "assistant.send_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("session.language", lang),
	)

	t := &turn{
		session: s,
		userID:  userID,
		lang:    lang,
		work:    append(base, model.UserTurn(text)),
	}

	roster := ""
	if s.deps.Roster != nil {
		roster = s.deps.Roster.Describe(ctx, lang)
	}
	system := systemInstruction(lang, roster, profile)

	reply, err := t.run(ctx, system)
	if s.Closed() {
		metrics.RecordAssistantTurn(lang, "closed")
		return nil, ErrSessionClosed
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		return s.fail(t, err), nil
	}

	s.commit(t.work)
	metrics.RecordAssistantTurn(lang, "ok")
	span.SetAttributes(attribute.Int("assistant.payloads", len(reply.Payloads)))
	return reply, nil
}

// fail answers with the apology. History is left untouched unless a tool
// already changed the store, in which case the executed rounds are kept and
// closed with the apology so history matches what happened.
func (s *Session) fail(t *turn, err error) *model.Reply {
	outcome := "model_error"
	eventType := model.EventTypeError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
		eventType = model.EventTypeTimeout
	case errors.Is(err, ErrToolLoop):
		outcome = "tool_limit"
	}
	metrics.RecordAssistantTurn(t.lang, outcome)

	s.log.Error("assistant turn failed",
		zap.String("outcome", outcome),
		zap.Int("rounds", t.rounds),
		zap.Bool("side_effects", t.sideEffects),
		zap.Error(err),
	)
	s.publish(eventType, err.Error(), map[string]any{"rounds": t.rounds, "side_effects": t.sideEffects})

	apology := Apology(t.lang)
	reply := &model.Reply{Text: apology}
	if t.sideEffects {
		s.commit(append(t.work, model.ModelTurn(apology, nil)))
		reply.Payloads = t.payloads
	}
	return reply
}

func (s *Session) commit(history []model.Turn) {
	history = s.opts.History.Apply(history)
	s.mu.Lock()
	s.history = append([]model.Turn(nil), history...)
	s.mu.Unlock()
	s.touch()
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Session) publish(eventType model.EventType, reason string, meta map[string]any) {
	if s.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	event := &model.ConversationEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: s.id,
		UserID:    s.owner,
		Type:      eventType,
		Reason:    reason,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.deps.Publisher.PublishConversationEvent(ctx, event); err != nil {
		metrics.EventPublishFailures.WithLabelValues("conversation").Inc()
		s.log.Warn("failed to publish session event", zap.String("type", string(eventType)), zap.Error(err))
	}
}

// turn is the working state of one SendMessage.
type turn struct {
	session     *Session
	userID      string
	lang        string
	work        []model.Turn
	payloads    []model.UIPayload
	rounds      int
	sideEffects bool
}

var mutatingTools = map[model.ToolName]bool{
	model.ToolBookAppointment:       true,
	model.ToolRescheduleAppointment: true,
	model.ToolCancelAppointment:     true,
}

func (t *turn) run(ctx context.Context, system string) (*model.Reply, error) {
	s := t.session
	tools := tool.Declarations()

	for {
		if t.rounds >= s.opts.MaxToolRounds+1 {
			return nil, ErrToolLoop
		}
		t.rounds++

		resp, err := s.deps.Client.Complete(ctx, &llm.CompletionRequest{
			Model:       s.opts.Model,
			System:      system,
			Tools:       tools,
			History:     t.work,
			MaxTokens:   s.opts.MaxTokens,
			Temperature: s.opts.Temperature,
		})
		if err != nil {
			return nil, err
		}
		if s.Closed() {
			return nil, ErrSessionClosed
		}

		if len(resp.ToolCalls) == 0 {
			t.work = append(t.work, model.ModelTurn(resp.Content, nil))
			return &model.Reply{Text: resp.Content, Payloads: t.payloads}, nil
		}

		t.work = append(t.work, model.ModelTurn(resp.Content, resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			// Never run a side effect for a session that is gone. Calls not run
			// still get a result so the round stays complete.
			if s.Closed() {
				t.cancelRemaining(resp.ToolCalls[i:])
				return nil, ErrSessionClosed
			}
			if err := ctx.Err(); err != nil {
				t.cancelRemaining(resp.ToolCalls[i:])
				return nil, err
			}

			result, ui := s.deps.Dispatcher.Dispatch(ctx, tool.Invocation{
				UserID:   t.userID,
				Language: t.lang,
				Call:     call,
			})
			t.work = append(t.work, model.ToolTurn(result))
			if ui != nil {
				t.payloads = append(t.payloads, *ui)
			}
			if !result.Failed() && mutatingTools[call.Name] {
				t.sideEffects = true
			}
			if result.Failed() {
				s.publish(model.EventTypeToolFailed, result.Error, map[string]any{"tool": string(call.Name)})
			}
		}
	}
}

func (t *turn) cancelRemaining(calls []model.ToolCall) {
	for _, call := range calls {
		t.work = append(t.work, model.ToolTurn(model.ToolResult{
			CallID: call.ID,
			Name:   call.Name,
			Error:  tool.TagCancelled,
		}))
	}
}

func normalizeLanguage(lang string) string {
	if lang == "ar" {
		return "ar"
	}
	return "en"
}
