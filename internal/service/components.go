// File: internal/service/components.go
package service

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/action"
	"github.com/xkilldash9x/villagebot/internal/auth"
	"github.com/xkilldash9x/villagebot/internal/bot"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/observability"
	"github.com/xkilldash9x/villagebot/internal/page"
	"github.com/xkilldash9x/villagebot/internal/scheduler"
	"github.com/xkilldash9x/villagebot/internal/session"
	"github.com/xkilldash9x/villagebot/internal/store"
)

// Components holds everything a bot run needs.
// Shutdown must only be called after every scheduler using Recorder has stopped.
type Components struct {
	Config        *config.Config
	Client        *session.Client
	Fetcher       *page.Fetcher
	Parser        *page.Parser
	Authenticator *auth.Authenticator
	Executor      *action.Executor
	Controller    *bot.Controller
	Recorder      scheduler.ActivityRecorder
	Store         *store.Store
	DBPool        *pgxpool.Pool

	// activity decouples the schedulers from database latency.
	activity *activitySink

	// consumerWG is used to ensure the activity consumer has finished draining the channel.
	consumerWG *sync.WaitGroup
}

// NewScheduler builds the scheduler for one account on the shared components.
func (c *Components) NewScheduler(creds schemas.Credentials) (*scheduler.Scheduler, error) {
	return scheduler.New(creds, c.Authenticator, c.Executor, c.Controller, c.Recorder, scheduler.Options{
		Bot:              c.Config.Bot,
		SessionCookie:    c.Config.Game.SessionCookie,
		OperationTimeout: c.Config.Network.OperationTimeout,
	}, observability.GetLogger())
}

// Shutdown gracefully closes all components, ensuring resources are released in the correct order.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Close the activity sink. This signals the consumer to drain and stop.
	if c.activity != nil {
		c.activity.Close()
		logger.Debug("Activity channel closed.")
	}

	// 2. Wait for the consumer to persist what was drained.
	if c.consumerWG != nil {
		c.consumerWG.Wait()
		c.consumerWG = nil
		logger.Debug("Activity consumer finished processing.")
	}

	// 3. Close the database connection pool.
	if c.DBPool != nil {
		c.DBPool.Close()
		c.DBPool = nil
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down successfully.")
}
