// Package auth logs a game account in and returns its initial state.
package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/observability"
	"github.com/xkilldash9x/villagebot/internal/page"
	"github.com/xkilldash9x/villagebot/internal/session"
)

// Authenticator runs the login form flow against a game server.
type Authenticator struct {
	fetcher *page.Fetcher
	parser  page.Extractor
	game    config.GameConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(fetcher *page.Fetcher, parser page.Extractor, game config.GameConfig, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		fetcher: fetcher,
		parser:  parser,
		game:    game,
		logger:  logger.Named("auth"),
		now:     time.Now,
	}
}

// Authenticate creates a fresh session for creds and logs it in.
//
// The session is returned even when err is non-nil so callers can inspect the
// cookies captured so far; it is only marked authenticated on success.
func (a *Authenticator) Authenticate(ctx context.Context, creds schemas.Credentials) (*session.Session, *schemas.PlayerState, error) {
	s, err := session.New(creds.ServerURL)
	if err != nil {
		return nil, nil, schemas.NewError(schemas.ErrCodeUnreachable, "auth.authenticate", "invalid server url", err)
	}
	state, err := a.login(ctx, s, creds)
	return s, state, err
}

// Reauthenticate clears s and runs the login flow on it again. It is used when
// the server expired the session.
func (a *Authenticator) Reauthenticate(ctx context.Context, s *session.Session, creds schemas.Credentials) (*schemas.PlayerState, error) {
	s.Reset()
	return a.login(ctx, s, creds)
}

func (a *Authenticator) login(ctx context.Context, s *session.Session, creds schemas.Credentials) (*schemas.PlayerState, error) {
	const op = "auth.login"
	log := observability.ForSession(a.logger, s.ID(), s.ServerURL().Host)

	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return nil, schemas.NewError(schemas.ErrCodeAuthenticationFailed, op, "email and password are required", nil)
	}

	paths := a.game.Paths
	doc, err := a.fetcher.Fetch(ctx, s, paths.Landing)
	if err != nil {
		return nil, err
	}

	form, ok := doc.LoginForm()
	if !ok {
		log.Debug("No login form on landing page, trying the login path.", zap.String("path", paths.Login))
		doc, err = a.fetcher.Fetch(ctx, s, paths.Login)
		if err != nil {
			return nil, err
		}
		if form, ok = doc.LoginForm(); !ok {
			return nil, schemas.Errorf(schemas.ErrCodeFormNotFound, op, nil, "no login form on %s or %s", paths.Landing, paths.Login)
		}
	}

	fields := a.game.Fields
	values := form.HiddenFields()
	values.Set(fields.LoginName, creds.Email)
	values.Set(fields.LoginPassword, creds.Password)
	if values.Get(fields.LoginMarker) == "" {
		values.Set(fields.LoginMarker, strconv.FormatInt(a.now().Unix(), 10))
	}

	target, err := doc.Resolve(form.Action)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeFormNotFound, op, "login form action is not a valid url", err)
	}
	if _, err := a.fetcher.Submit(ctx, s, target.String(), values); err != nil {
		return nil, err
	}

	gameDoc, err := a.fetcher.Fetch(ctx, s, paths.Game)
	if err != nil {
		return nil, err
	}
	if a.parser.LooksLikeLoginPage(gameDoc) {
		log.Warn("Login rejected, game page still shows the login form.")
		return nil, schemas.NewError(schemas.ErrCodeAuthenticationFailed, op, "server returned the login page after submitting credentials", nil)
	}

	s.MarkAuthenticated()
	state := a.parser.PlayerState(gameDoc)
	log.Info("Login successful.",
		zap.String("race", string(state.Race)),
		zap.Int("villages", len(state.Villages)),
		zap.Int("cookies", s.Len()),
	)
	return state, nil
}
