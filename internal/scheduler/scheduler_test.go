// File: internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/bot"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/mocks"
	"github.com/xkilldash9x/villagebot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testCreds = schemas.Credentials{Email: "chief@example.com", Password: "secret", ServerURL: "http://game.test"}

type harness struct {
	sched *Scheduler
	auth  *mocks.MockAuthenticator
	exec  *mocks.MockExecutor
	rec   *mocks.MockRecorder
	ctrl  *bot.Controller
	clock time.Time
}

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func defaultBot() config.BotConfig {
	return config.BotConfig{
		TickInterval:  10 * time.Millisecond,
		FarmInterval:  30 * time.Minute,
		TrainInterval: time.Hour,
		BuildInterval: 15 * time.Minute,
		TrainTroop:    "Phalanx",
		TrainQuantity: 5,
		BuildQueue:    []string{"Granary", "Warehouse"},
	}
}

func newHarness(t *testing.T, botCfg config.BotConfig) *harness {
	t.Helper()
	h := &harness{
		auth:  &mocks.MockAuthenticator{},
		exec:  &mocks.MockExecutor{},
		rec:   &mocks.MockRecorder{},
		ctrl:  bot.NewController(),
		clock: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	sched, err := New(testCreds, h.auth, h.exec, h.ctrl, h.rec, Options{
		Bot:              botCfg,
		SessionCookie:    "JWT",
		OperationTimeout: time.Minute,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sched.now = func() time.Time { return h.clock }
	h.sched = sched
	return h
}

func authenticatedSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(testCreds.ServerURL)
	require.NoError(t, err)
	s.MarkAuthenticated()
	return s
}

func executedRequests(exec *mocks.MockExecutor) []schemas.ActionRequest {
	var reqs []schemas.ActionRequest
	for _, call := range exec.Calls {
		if call.Method == "Execute" {
			reqs = append(reqs, call.Arguments.Get(2).(schemas.ActionRequest))
		}
	}
	return reqs
}

func TestNew_Validation(t *testing.T) {
	_, err := New(testCreds, nil, &mocks.MockExecutor{}, bot.NewController(), nil, Options{Bot: defaultBot()}, nil)
	assert.Error(t, err)

	cfg := defaultBot()
	cfg.TickInterval = 0
	_, err = New(testCreds, &mocks.MockAuthenticator{}, &mocks.MockExecutor{}, bot.NewController(), nil, Options{Bot: cfg}, nil)
	assert.Error(t, err)

	cfg = defaultBot()
	cfg.TrainQuantity = 0
	cfg.BuildQueue = nil
	s, err := New(testCreds, &mocks.MockAuthenticator{}, &mocks.MockExecutor{}, bot.NewController(), nil, Options{Bot: cfg}, nil)
	require.NoError(t, err)
	require.Len(t, s.tasks, 1, "only farming is configured")
	assert.Equal(t, "farm", s.tasks[0].name)
}

func TestTick_StoppedAndPausedDoNothing(t *testing.T) {
	h := newHarness(t, defaultBot())

	h.sched.Tick(context.Background())

	require.NoError(t, h.ctrl.Start())
	require.NoError(t, h.ctrl.Pause())
	h.sched.Tick(context.Background())

	h.auth.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	h.exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.rec.Entries())
}

func TestTick_RunsDueTasksInOrder(t *testing.T) {
	h := newHarness(t, defaultBot())
	sess := authenticatedSession(t)

	h.auth.On("Authenticate", mock.Anything, testCreds).
		Return(sess, &schemas.PlayerState{Race: schemas.RaceGauls}, nil).Once()
	h.exec.On("Execute", mock.Anything, sess, mock.Anything).
		Return(&schemas.ActionResult{Success: true, Message: "ok"}, nil)
	h.rec.On("Record", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.ctrl.Start())
	h.sched.Tick(context.Background())

	assert.Equal(t, []string{"login", "village_farm", "village_train", "village_build"}, h.rec.Actions())
	assert.Same(t, sess, h.sched.Session())
	assert.Equal(t, schemas.RaceGauls, h.sched.PlayerState().Race)

	// Nothing is due a minute later.
	h.advance(time.Minute)
	h.sched.Tick(context.Background())
	assert.Len(t, executedRequests(h.exec), 3)

	// Only the build interval has elapsed after 16 minutes.
	h.advance(15 * time.Minute)
	h.sched.Tick(context.Background())

	reqs := executedRequests(h.exec)
	require.Len(t, reqs, 4)
	assert.Equal(t, schemas.ActionRequest{Kind: schemas.ActionFarm}, reqs[0])
	assert.Equal(t, schemas.ActionRequest{Kind: schemas.ActionTrain, TroopType: "Phalanx", Quantity: 5}, reqs[1])
	assert.Equal(t, "Granary", reqs[2].BuildingType)
	assert.Equal(t, "Warehouse", reqs[3].BuildingType)

	h.auth.AssertExpectations(t)
}

func TestTick_BuildQueueSkipsMissingForms(t *testing.T) {
	cfg := defaultBot()
	cfg.FarmInterval = 0
	cfg.TrainInterval = 0
	h := newHarness(t, cfg)
	sess := authenticatedSession(t)

	h.auth.On("Authenticate", mock.Anything, testCreds).Return(sess, &schemas.PlayerState{}, nil)
	notFound := schemas.NewError(schemas.ErrCodeFormNotFound, "action.build", "no build form", nil)
	unreachable := schemas.NewError(schemas.ErrCodeUnreachable, "page.fetch", "down", nil)
	h.exec.On("Execute", mock.Anything, sess, mock.MatchedBy(func(r schemas.ActionRequest) bool {
		return r.BuildingType == "Granary"
	})).Return(nil, notFound).Once()
	h.exec.On("Execute", mock.Anything, sess, mock.MatchedBy(func(r schemas.ActionRequest) bool {
		return r.BuildingType == "Warehouse"
	})).Return(nil, unreachable)
	h.rec.On("Record", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.ctrl.Start())
	h.sched.Tick(context.Background())
	h.advance(cfg.BuildInterval)
	h.sched.Tick(context.Background())
	h.advance(cfg.BuildInterval)
	h.sched.Tick(context.Background())

	reqs := executedRequests(h.exec)
	require.Len(t, reqs, 3)
	assert.Equal(t, "Granary", reqs[0].BuildingType)
	assert.Equal(t, "Warehouse", reqs[1].BuildingType)
	assert.Equal(t, "Warehouse", reqs[2].BuildingType, "transport failures retry the same entry")

	entries := h.rec.Entries()
	require.Len(t, entries, 4)
	assert.False(t, entries[1].Success)
	assert.Equal(t, "FORM_NOT_FOUND", entries[1].Details["code"])
	assert.Equal(t, "UNREACHABLE", entries[2].Details["code"])
}

func TestTick_LoginFailureSkipsActions(t *testing.T) {
	h := newHarness(t, defaultBot())
	anon, err := session.New(testCreds.ServerURL)
	require.NoError(t, err)

	authErr := schemas.NewError(schemas.ErrCodeAuthenticationFailed, "auth.login", "bad password", nil)
	h.auth.On("Authenticate", mock.Anything, testCreds).Return(anon, nil, authErr).Once()
	h.auth.On("Reauthenticate", mock.Anything, anon, testCreds).Return(nil, authErr).Once()
	h.rec.On("Record", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.ctrl.Start())
	h.sched.Tick(context.Background())
	assert.Same(t, anon, h.sched.Session(), "the unauthenticated session is kept")

	h.advance(time.Minute)
	h.sched.Tick(context.Background())

	entries := h.rec.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "login", e.Action)
		assert.False(t, e.Success)
		assert.Equal(t, "AUTHENTICATION_FAILED", e.Details["code"])
	}
	h.exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	h.auth.AssertExpectations(t)
}

func TestTick_ReauthenticatesExpiredSession(t *testing.T) {
	cfg := defaultBot()
	cfg.FarmInterval = 0
	cfg.TrainInterval = 0
	cfg.BuildInterval = 0
	h := newHarness(t, cfg)

	sess := authenticatedSession(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(h.clock.Add(5 * time.Minute)),
	})
	signed, err := token.SignedString([]byte("k"))
	require.NoError(t, err)
	sess.SetCookie("JWT", signed)

	h.auth.On("Authenticate", mock.Anything, testCreds).Return(sess, &schemas.PlayerState{}, nil).Once()
	h.auth.On("Reauthenticate", mock.Anything, sess, testCreds).Return(&schemas.PlayerState{}, nil).Once()
	h.rec.On("Record", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.ctrl.Start())
	h.sched.Tick(context.Background())
	h.advance(time.Minute)
	h.sched.Tick(context.Background())
	h.auth.AssertNumberOfCalls(t, "Reauthenticate", 0)

	h.advance(10 * time.Minute)
	h.sched.Tick(context.Background())
	h.auth.AssertExpectations(t)
	assert.Equal(t, []string{"login", "login"}, h.rec.Actions())
}

func TestTick_RecorderErrorsDoNotStopTasks(t *testing.T) {
	h := newHarness(t, defaultBot())
	sess := authenticatedSession(t)

	h.auth.On("Authenticate", mock.Anything, testCreds).Return(sess, &schemas.PlayerState{}, nil)
	h.exec.On("Execute", mock.Anything, sess, mock.Anything).
		Return(&schemas.ActionResult{Success: true, Resources: &schemas.Resources{Wood: 5}}, nil)
	h.rec.On("Record", mock.Anything, mock.Anything).Return(errors.New("database down"))

	require.NoError(t, h.ctrl.Start())
	h.sched.Tick(context.Background())

	assert.Len(t, executedRequests(h.exec), 3)
	entries := h.rec.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, schemas.Resources{Wood: 5}, entries[1].Details["resources"])
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, defaultBot())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	assert.NoError(t, h.sched.Run(ctx))
	h.auth.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

func TestRunAll(t *testing.T) {
	a := newHarness(t, defaultBot())
	b := newHarness(t, defaultBot())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunAll(ctx, a.sched, b.sched) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunAll did not return after cancellation")
	}
}

func TestLogAndMultiRecorder(t *testing.T) {
	logRec := NewLogRecorder(zaptest.NewLogger(t))
	failing := &mocks.MockRecorder{}
	failing.On("Record", mock.Anything, mock.Anything).Return(errors.New("boom"))

	multi := MultiRecorder{logRec, failing}
	err := multi.Record(context.Background(), schemas.ActivityEntry{
		Action:  "village_farm",
		Details: map[string]interface{}{"code": "UNREACHABLE"},
	})
	assert.EqualError(t, err, "boom")
	assert.Len(t, failing.Entries(), 1)
}

func TestTick_DroppedSessionLogsInAgain(t *testing.T) {
	cfg := defaultBot()
	cfg.FarmInterval = 0
	cfg.TrainInterval = 0
	h := newHarness(t, cfg)
	sess := authenticatedSession(t)

	dropped := schemas.NewError(schemas.ErrCodeAuthenticationFailed, "action.build", "login page returned", nil)
	h.auth.On("Authenticate", mock.Anything, testCreds).Return(sess, &schemas.PlayerState{}, nil).Once()
	h.auth.On("Reauthenticate", mock.Anything, sess, testCreds).
		Run(func(mock.Arguments) { sess.MarkAuthenticated() }).
		Return(&schemas.PlayerState{}, nil).Once()
	h.exec.On("Execute", mock.Anything, sess, mock.Anything).
		Run(func(mock.Arguments) { sess.Invalidate() }).
		Return(nil, dropped).Once()
	h.exec.On("Execute", mock.Anything, sess, mock.Anything).
		Return(&schemas.ActionResult{Success: true, Message: "ok"}, nil)
	h.rec.On("Record", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.ctrl.Start())
	h.sched.Tick(context.Background())
	assert.False(t, sess.Authenticated())

	h.advance(time.Minute)
	h.sched.Tick(context.Background())
	h.advance(cfg.BuildInterval)
	h.sched.Tick(context.Background())

	reqs := executedRequests(h.exec)
	require.Len(t, reqs, 3)
	assert.Equal(t, "Granary", reqs[0].BuildingType)
	assert.Equal(t, "Granary", reqs[1].BuildingType, "the queue does not advance on a dropped session")
	assert.Equal(t, "Warehouse", reqs[2].BuildingType)

	h.auth.AssertExpectations(t)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, []string{"login", "village_build", "login", "village_build", "village_build"}, h.rec.Actions())
}
