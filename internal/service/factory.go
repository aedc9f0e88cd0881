// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/action"
	"github.com/xkilldash9x/villagebot/internal/auth"
	"github.com/xkilldash9x/villagebot/internal/bot"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/page"
	"github.com/xkilldash9x/villagebot/internal/scheduler"
	"github.com/xkilldash9x/villagebot/internal/session"
)

const transitionRecordTimeout = 5 * time.Second

// transitionEntry describes a controller transition as bot_start, bot_pause or bot_stop.
func transitionEntry(from, to bot.State, at time.Time) schemas.ActivityEntry {
	action := "bot_stop"
	switch to {
	case bot.Running:
		action = "bot_start"
	case bot.Paused:
		action = "bot_pause"
	}
	return schemas.ActivityEntry{
		Action:    action,
		Success:   true,
		Message:   fmt.Sprintf("bot %s -> %s", from, to),
		Details:   map[string]interface{}{"from": string(from), "to": string(to)},
		Timestamp: at,
	}
}

// ComponentFactory creates the set of components needed for a command.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	withStore bool
}

// NewComponentFactory creates a factory. withStore enables the activity log
// when database.url is configured.
func NewComponentFactory(withStore bool) ComponentFactory {
	return &concreteFactory{withStore: withStore}
}

// Create handles the full dependency injection and initialization of components.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{Config: cfg}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Transport and session client
	client, err := session.NewClientFromConfig(cfg.Network, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create session client: %w", err)
		return nil, initializationErr
	}
	components.Client = client

	// 2. Page layer
	parser, err := page.NewParser(cfg.Game.Markup, cfg.Game.Paths.VillageParam)
	if err != nil {
		initializationErr = fmt.Errorf("failed to compile markup selectors: %w", err)
		return nil, initializationErr
	}
	components.Parser = parser
	components.Fetcher = page.NewFetcher(client, logger)

	// 3. Login and actions
	components.Authenticator = auth.NewAuthenticator(components.Fetcher, parser, cfg.Game, logger)
	components.Executor = action.NewExecutor(components.Fetcher, parser, cfg.Game, logger,
		action.WithEvacuationDestination(cfg.Bot.EvacuationDestination))

	// 4. Activity recording: always logged, persisted when a database is configured.
	recorders := scheduler.MultiRecorder{scheduler.NewLogRecorder(logger)}
	if f.withStore && cfg.Database.URL != "" {
		st, pool, err := InitializeStore(ctx, cfg.Database, logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.Store = st
		components.DBPool = pool

		components.activity = newActivitySink(256)
		components.consumerWG = &sync.WaitGroup{}
		StartActivityConsumer(ctx, components.consumerWG, components.activity.ch, st, logger)
		recorders = append(recorders, components.activity)
	} else if f.withStore {
		logger.Info("No database configured (hint: check VILLAGEBOT_DATABASE_URL); activity is only logged.")
	}
	components.Recorder = recorders

	// 5. Controller. Every transition lands in the activity log.
	components.Controller = bot.NewController()
	components.Controller.OnTransition(func(from, to bot.State) {
		logger.Info("Bot state changed.", zap.String("from", string(from)), zap.String("to", string(to)))
		recordCtx, cancel := context.WithTimeout(context.Background(), transitionRecordTimeout)
		defer cancel()
		if err := components.Recorder.Record(recordCtx, transitionEntry(from, to, time.Now())); err != nil {
			logger.Warn("Failed to record bot state change.", zap.Error(err))
		}
	})

	logger.Debug("All components initialized successfully.")
	return components, nil
}
