// File: internal/scheduler/scheduler.go
// Description: Drives one account while the bot controller is Running. It owns
// the account's session, so every request on that session goes through here.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/bot"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/observability"
	"github.com/xkilldash9x/villagebot/internal/session"
)

// Authenticator logs an account in.
type Authenticator interface {
	Authenticate(ctx context.Context, creds schemas.Credentials) (*session.Session, *schemas.PlayerState, error)
	Reauthenticate(ctx context.Context, s *session.Session, creds schemas.Credentials) (*schemas.PlayerState, error)
}

// ActionExecutor runs one village action.
type ActionExecutor interface {
	Execute(ctx context.Context, s *session.Session, req schemas.ActionRequest) (*schemas.ActionResult, error)
}

// ActivityRecorder receives every action outcome.
type ActivityRecorder interface {
	Record(ctx context.Context, entry schemas.ActivityEntry) error
}

// StateSource reports the bot run state.
type StateSource interface {
	State() bot.State
}

// Options holds the per-account tuning.
type Options struct {
	Bot              config.BotConfig
	SessionCookie    string
	OperationTimeout time.Duration
}

type task struct {
	name     string
	interval time.Duration
	next     func() schemas.ActionRequest
	lastRun  time.Time
}

// Scheduler polls the controller and runs due actions for one account.
type Scheduler struct {
	creds    schemas.Credentials
	auth     Authenticator
	exec     ActionExecutor
	state    StateSource
	recorder ActivityRecorder
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	session   *session.Session
	player    *schemas.PlayerState
	tasks     []*task
	buildNext int
}

// New creates a Scheduler. A nil recorder discards activity.
func New(
	creds schemas.Credentials,
	auth Authenticator,
	exec ActionExecutor,
	state StateSource,
	recorder ActivityRecorder,
	opts Options,
	logger *zap.Logger,
) (*Scheduler, error) {
	if auth == nil || exec == nil || state == nil {
		return nil, fmt.Errorf("cannot initialize scheduler with nil dependencies")
	}
	if opts.Bot.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = discardRecorder{}
	}

	s := &Scheduler{
		creds:    creds,
		auth:     auth,
		exec:     exec,
		state:    state,
		recorder: recorder,
		opts:     opts,
		logger:   observability.ForAccount(logger.Named("scheduler"), creds.Email),
		now:      time.Now,
	}
	s.tasks = s.buildTasks()
	return s, nil
}

func (s *Scheduler) buildTasks() []*task {
	b := s.opts.Bot
	var tasks []*task
	if b.FarmInterval > 0 {
		tasks = append(tasks, &task{
			name:     "farm",
			interval: b.FarmInterval,
			next: func() schemas.ActionRequest {
				return schemas.ActionRequest{Kind: schemas.ActionFarm, VillageID: b.VillageID}
			},
		})
	}
	if b.TrainInterval > 0 && b.TrainTroop != "" && b.TrainQuantity > 0 {
		tasks = append(tasks, &task{
			name:     "train",
			interval: b.TrainInterval,
			next: func() schemas.ActionRequest {
				return schemas.ActionRequest{
					Kind:      schemas.ActionTrain,
					VillageID: b.VillageID,
					TroopType: b.TrainTroop,
					Quantity:  b.TrainQuantity,
				}
			},
		})
	}
	if b.BuildInterval > 0 && len(b.BuildQueue) > 0 {
		tasks = append(tasks, &task{
			name:     "build",
			interval: b.BuildInterval,
			next: func() schemas.ActionRequest {
				return schemas.ActionRequest{
					Kind:         schemas.ActionBuild,
					VillageID:    b.VillageID,
					BuildingType: b.BuildQueue[s.buildNext%len(b.BuildQueue)],
				}
			},
		})
	}
	return tasks
}

// Session returns the session the scheduler owns, or nil before the first login.
func (s *Scheduler) Session() *session.Session { return s.session }

// PlayerState returns the state captured at the last login.
func (s *Scheduler) PlayerState() *schemas.PlayerState { return s.player }

// Run ticks until ctx is cancelled. It never returns an error for failed
// actions; those go to the recorder.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started.", zap.Duration("tick", s.opts.Bot.TickInterval), zap.Int("tasks", len(s.tasks)))
	ticker := time.NewTicker(s.opts.Bot.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped.")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every due task once, in order, if the bot is Running.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.state.State() != bot.Running {
		return
	}
	if err := s.ensureSession(ctx); err != nil {
		return
	}

	for _, t := range s.tasks {
		if ctx.Err() != nil || s.state.State() != bot.Running {
			return
		}
		now := s.now()
		if !t.lastRun.IsZero() && now.Sub(t.lastRun) < t.interval {
			continue
		}
		t.lastRun = now
		if err := s.runTask(ctx, t); errors.Is(err, schemas.ErrAuthenticationFailed) {
			// The server dropped the session. Retry the task right after the
			// next login instead of waiting a full interval.
			t.lastRun = time.Time{}
			return
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *task) error {
	req := t.next()
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()

	res, err := s.exec.Execute(opCtx, s.session, req)
	if t.name == "build" && (err == nil || errors.Is(err, schemas.ErrFormNotFound)) {
		s.buildNext++
	}
	s.record(ctx, actionEntry(s.creds.Email, req, res, err, s.now()))
	return err
}

func (s *Scheduler) ensureSession(ctx context.Context) error {
	if s.session != nil && s.session.Authenticated() && !s.session.Expired(s.opts.SessionCookie, s.now()) {
		return nil
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()

	var (
		player *schemas.PlayerState
		err    error
	)
	if s.session == nil {
		var sess *session.Session
		sess, player, err = s.auth.Authenticate(opCtx, s.creds)
		if sess != nil {
			s.session = sess
		}
	} else {
		s.logger.Info("Session expired or invalidated, logging in again.")
		player, err = s.auth.Reauthenticate(opCtx, s.session, s.creds)
	}

	entry := schemas.ActivityEntry{
		Account:   s.creds.Email,
		Action:    "login",
		Success:   err == nil,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Message = err.Error()
		entry.Details = map[string]interface{}{"code": string(schemas.CodeOf(err))}
		s.record(ctx, entry)
		return err
	}

	s.player = player
	entry.Message = "logged in"
	if player != nil {
		entry.Details = map[string]interface{}{"race": string(player.Race), "villages": len(player.Villages)}
	}
	s.record(ctx, entry)
	return nil
}

func (s *Scheduler) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OperationTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Scheduler) record(ctx context.Context, entry schemas.ActivityEntry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("Failed to record activity.", zap.String("action", entry.Action), zap.Error(err))
	}
}

func actionEntry(account string, req schemas.ActionRequest, res *schemas.ActionResult, err error, ts time.Time) schemas.ActivityEntry {
	entry := schemas.ActivityEntry{
		Account:   account,
		Action:    "village_" + string(req.Kind),
		Timestamp: ts,
		Details:   map[string]interface{}{"request": req},
	}
	if err != nil {
		entry.Message = err.Error()
		entry.Details["code"] = string(schemas.CodeOf(err))
		return entry
	}
	entry.Success = res.Success
	entry.Message = res.Message
	entry.Details["payload"] = res.Payload
	if res.Resources != nil {
		entry.Details["resources"] = *res.Resources
	}
	return entry
}

// RunAll runs every scheduler concurrently until ctx is cancelled. Distinct
// accounts never share a session.
func RunAll(ctx context.Context, schedulers ...*Scheduler) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range schedulers {
		s := s
		g.Go(func() error { return s.Run(gctx) })
	}
	return g.Wait()
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, schemas.ActivityEntry) error { return nil }
