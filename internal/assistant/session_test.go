package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeina-health/companion/internal/catalog"
	"github.com/zeina-health/companion/internal/llm"
	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
	"github.com/zeina-health/companion/internal/store"
	"github.com/zeina-health/companion/internal/tool"
	"github.com/zeina-health/companion/pkg/logger"
)

// fakeModel answers each Complete with the next scripted step.
type fakeModel struct {
	mu       sync.Mutex
	steps    []func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
	requests []llm.CompletionRequest
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	cp := *req
	cp.History = append([]model.Turn(nil), req.History...)
	f.requests = append(f.requests, cp)
	n := len(f.requests) - 1
	var step func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error)
	if n < len(f.steps) {
		step = f.steps[n]
	}
	f.mu.Unlock()

	if step == nil {
		return nil, errors.New("unscripted call")
	}
	return step(ctx, req)
}

func (f *fakeModel) calls() []llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.CompletionRequest(nil), f.requests...)
}

func text(s string) func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: s}, nil
	}
}

func tools(calls ...model.ToolCall) func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{ToolCalls: calls}, nil
	}
}

func failure(err error) func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, err
	}
}

func toolCall(id string, name model.ToolName, args string) model.ToolCall {
	return model.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

type fixture struct {
	model   *fakeModel
	appts   *service.AppointmentService
	session *Session
}

func newFixture(t *testing.T, opts Options, steps ...func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error)) *fixture {
	t.Helper()
	log := logger.NewNop()
	mem := store.NewMemoryStore()
	cat := catalog.Default()
	appts := service.NewAppointmentService(mem.Appointments(), cat, service.AppointmentOptions{}, log)
	ratings := service.NewRatingService(mem.Reviews(), mem.Users(), log)
	fm := &fakeModel{steps: steps}

	deps := Dependencies{
		Client:     fm,
		Dispatcher: tool.NewDispatcher(appts, nil, log),
		Roster:     NewRoster(cat, ratings, 25, log),
	}
	s := NewSession("owner-1", "en", deps, opts, log)
	s.SetUserProfile(&model.User{ID: "u1", Name: "Nadia", Age: 30})
	return &fixture{model: fm, appts: appts, session: s}
}

func roles(history []model.Turn) []model.TurnRole {
	out := make([]model.TurnRole, len(history))
	for i, h := range history {
		out[i] = h.Role
	}
	return out
}

func TestSendMessagePlainText(t *testing.T) {
	f := newFixture(t, Options{}, text("Hello Nadia"))

	reply, err := f.session.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello Nadia", reply.Text)
	assert.Empty(t, reply.Payloads)
	assert.Equal(t, []model.TurnRole{model.TurnUser, model.TurnModel}, roles(f.session.History()))

	req := f.model.calls()[0]
	assert.Contains(t, req.System, "[Context: Available Experts: Dr. Fatima Al-Otaibi (ID: 1, Skin, rating 4.9)")
	assert.Contains(t, req.System, "[User Profile Context: Name: Nadia, Age: 30]")
	assert.NotContains(t, req.System, "converse primarily in Arabic")
	assert.Len(t, req.Tools, 5)
}

func TestBookThroughAssistantIsConfirmed(t *testing.T) {
	f := newFixture(t, Options{},
		tools(toolCall("c1", model.ToolBookAppointment, `{"expertId":"1","date":"2025-11-01","time":"10:00 AM"}`)),
		text("Booked!"),
	)

	reply, err := f.session.SendMessage(context.Background(), "book Dr. Fatima")
	require.NoError(t, err)
	booking := reply.BookingDetails()
	require.NotNil(t, booking)
	assert.Equal(t, model.StatusConfirmed, booking.Status)
	assert.Equal(t, "u1", booking.UserID)

	assert.Equal(t,
		[]model.TurnRole{model.TurnUser, model.TurnModel, model.TurnTool, model.TurnModel},
		roles(f.session.History()))
}

func TestTwoSequentialToolCallsInOneResponse(t *testing.T) {
	f := newFixture(t, Options{})
	existing, err := f.appts.Book(context.Background(), "u1", "en",
		&model.BookAppointmentRequest{ExpertID: "2", Date: "2025-11-01", Time: "10:00 AM"},
		service.BookingPolicy{AutoConfirm: true})
	require.NoError(t, err)

	f.model.steps = append(f.model.steps,
		tools(
			toolCall("c1", model.ToolGetMyAppointments, `{}`),
			toolCall("c2", model.ToolRescheduleAppointment, `{"appointmentId":"`+existing.ID+`","newDate":"2025-11-05","newTime":"02:00 PM"}`),
		),
		text("Moved to Nov 5."),
	)

	reply, err := f.session.SendMessage(context.Background(), "move my appointment to Nov 5 at 2pm")
	require.NoError(t, err)
	assert.Equal(t, "Moved to Nov 5.", reply.Text)
	require.Len(t, reply.Payloads, 2)
	assert.Equal(t, model.PayloadAppointmentList, reply.Payloads[0].Kind)
	assert.Equal(t, model.PayloadBooking, reply.Payloads[1].Kind)
	assert.Equal(t, "2025-11-05", reply.BookingDetails().Date)

	calls := f.model.calls()
	require.Len(t, calls, 2)
	second := calls[1].History
	require.Len(t, second, 4)
	assert.Equal(t, "c1", second[2].ToolResults[0].CallID)
	assert.Equal(t, "c2", second[3].ToolResults[0].CallID)
	assert.False(t, second[3].ToolResults[0].Failed())
}

func TestRescheduleUnknownIDHasNoBookingCard(t *testing.T) {
	f := newFixture(t, Options{},
		tools(toolCall("c1", model.ToolRescheduleAppointment, `{"appointmentId":"missing","newDate":"2025-11-05","newTime":"02:00 PM"}`)),
		text("I couldn't find that appointment, could you confirm?"),
	)

	reply, err := f.session.SendMessage(context.Background(), "reschedule")
	require.NoError(t, err)
	assert.Nil(t, reply.BookingDetails())

	history := f.session.History()
	require.Len(t, history, 4)
	assert.Equal(t, tool.TagAppointmentNotFound, history[2].ToolResults[0].Error)
}

func TestModelFailureLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t, Options{}, text("first answer"), failure(errors.New("network down")))

	_, err := f.session.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	before := f.session.History()

	reply, err := f.session.SendMessage(context.Background(), "are you there?")
	require.NoError(t, err)
	assert.Equal(t, Apology("en"), reply.Text)
	assert.Equal(t, before, f.session.History())
	assert.Len(t, f.model.calls(), 2)
}

func TestModelFailureAfterSideEffectKeepsExecutedRounds(t *testing.T) {
	f := newFixture(t, Options{},
		tools(toolCall("c1", model.ToolBookAppointment, `{"expertId":"3","date":"2025-11-01","time":"10:00 AM"}`)),
		failure(errors.New("quota")),
	)

	reply, err := f.session.SendMessage(context.Background(), "book")
	require.NoError(t, err)
	assert.Equal(t, Apology("en"), reply.Text)
	require.NotNil(t, reply.BookingDetails())

	history := f.session.History()
	assert.Equal(t,
		[]model.TurnRole{model.TurnUser, model.TurnModel, model.TurnTool, model.TurnModel},
		roles(history))
	assert.Equal(t, Apology("en"), history[3].Content)

	list, err := f.appts.ListActiveForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestArabicApologyAndDirective(t *testing.T) {
	f := newFixture(t, Options{}, failure(errors.New("boom")))
	f.session.SetLanguage("ar")

	reply, err := f.session.SendMessage(context.Background(), "مرحبا")
	require.NoError(t, err)
	assert.Equal(t, Apology("ar"), reply.Text)
	assert.Contains(t, f.model.calls()[0].System, "converse primarily in Arabic")
	assert.Contains(t, f.model.calls()[0].System, "د. فاطمة العتيبي")
}

func TestToolLoopIsBounded(t *testing.T) {
	loop := tools(toolCall("c", model.ToolGetMyAppointments, `{}`))
	f := newFixture(t, Options{MaxToolRounds: 2}, loop, loop, loop, loop, loop)

	reply, err := f.session.SendMessage(context.Background(), "list forever")
	require.NoError(t, err)
	assert.Equal(t, Apology("en"), reply.Text)
	assert.Len(t, f.model.calls(), 3)
	assert.Empty(t, f.session.History())
}

func TestAnonymousSessionActsAsDemoUser(t *testing.T) {
	f := newFixture(t, Options{},
		tools(toolCall("c1", model.ToolBookAppointment, `{"expertId":"1","date":"2025-11-01","time":"10:00 AM"}`)),
		text("done"),
	)
	f.session.SetUserProfile(nil)

	reply, err := f.session.SendMessage(context.Background(), "book")
	require.NoError(t, err)
	assert.Equal(t, model.DemoUserID, reply.BookingDetails().UserID)
	assert.NotContains(t, f.model.calls()[0].System, "User Profile Context")
}

func TestConcurrentSendIsRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	f := newFixture(t, Options{}, func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		close(entered)
		<-release
		return &llm.CompletionResponse{Content: "done"}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.session.SendMessage(context.Background(), "first")
		done <- err
	}()

	<-entered
	_, err := f.session.SendMessage(context.Background(), "second")
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, f.session.History(), 2)
}

func TestCloseAbandonsInFlightTurn(t *testing.T) {
	entered := make(chan struct{})
	f := newFixture(t, Options{}, func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		close(entered)
		<-ctx.Done()
		// A late response must not be applied to a closed session.
		return &llm.CompletionResponse{ToolCalls: []model.ToolCall{
			toolCall("c1", model.ToolBookAppointment, `{"expertId":"1","date":"2025-11-01","time":"10:00 AM"}`),
		}}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.session.SendMessage(context.Background(), "book")
		done <- err
	}()

	<-entered
	f.session.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after close")
	}

	list, err := f.appts.ListActiveForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.session.SendMessage(context.Background(), "again")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestLanguageSwitchKeepsPastTurns(t *testing.T) {
	f := newFixture(t, Options{}, text("Hi"), text("أهلاً"))

	_, err := f.session.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	f.session.SetLanguage("ar")
	_, err = f.session.SendMessage(context.Background(), "مرحبا")
	require.NoError(t, err)

	history := f.session.History()
	require.Len(t, history, 4)
	assert.Equal(t, "Hi", history[1].Content)
	assert.Equal(t, "ar", f.session.Language())
}

func TestHistoryPolicyBoundsCommittedLog(t *testing.T) {
	f := newFixture(t, Options{History: KeepLastTurns(2)}, text("a"), text("b"), text("c"))

	for _, msg := range []string{"1", "2", "3"} {
		_, err := f.session.SendMessage(context.Background(), msg)
		require.NoError(t, err)
	}

	history := f.session.History()
	require.Len(t, history, 2)
	assert.Equal(t, "3", history[0].Content)
	assert.Equal(t, "c", history[1].Content)
}

// cancelAfterDispatch runs calls through next and cancels the request
// context once the first one has executed.
type cancelAfterDispatch struct {
	next   Dispatcher
	cancel context.CancelFunc
}

func (d *cancelAfterDispatch) Dispatch(ctx context.Context, inv tool.Invocation) (model.ToolResult, *model.UIPayload) {
	result, ui := d.next.Dispatch(ctx, inv)
	d.cancel()
	return result, ui
}

func TestCancelledRoundKeepsEveryCallAnswered(t *testing.T) {
	f := newFixture(t, Options{},
		tools(
			toolCall("c1", model.ToolBookAppointment, `{"expertId":"1","date":"2025-11-01","time":"10:00 AM"}`),
			toolCall("c2", model.ToolGetMyAppointments, `{}`),
		),
		text("unreachable"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.session.deps.Dispatcher = &cancelAfterDispatch{next: f.session.deps.Dispatcher, cancel: cancel}

	reply, err := f.session.SendMessage(ctx, "book and list")
	require.NoError(t, err)
	assert.Equal(t, Apology("en"), reply.Text)
	require.NotNil(t, reply.BookingDetails())

	history := f.session.History()
	calls, results := map[string]int{}, map[string]int{}
	for _, h := range history {
		for _, c := range h.ToolCalls {
			calls[c.ID]++
		}
		for _, r := range h.ToolResults {
			results[r.CallID]++
		}
	}
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, calls)
	assert.Equal(t, calls, results)

	require.Len(t, history, 5)
	assert.False(t, history[2].ToolResults[0].Failed())
	assert.Equal(t, tool.TagCancelled, history[3].ToolResults[0].Error)
	assert.Equal(t, Apology("en"), history[4].Content)
	assert.Len(t, f.model.calls(), 1)
}
