// internal/action/executor.go
package action

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/observability"
	"github.com/xkilldash9x/villagebot/internal/page"
	"github.com/xkilldash9x/villagebot/internal/session"
)

// Facility names used in TrainOutcome.
const (
	FacilityBarracks = "barracks"
	FacilityStable   = "stable"
	FacilityWorkshop = "workshop"
)

// Executor runs village actions on an authenticated session. It performs no
// retries; each call is a strict fetch, submit, parse sequence.
type Executor struct {
	fetcher     *page.Fetcher
	parser      page.Extractor
	game        config.GameConfig
	destination string
	logger      *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithEvacuationDestination sets the destination reported by evacuations.
func WithEvacuationDestination(dest string) Option {
	return func(e *Executor) { e.destination = dest }
}

// NewExecutor creates an Executor.
func NewExecutor(fetcher *page.Fetcher, parser page.Extractor, game config.GameConfig, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		fetcher: fetcher,
		parser:  parser,
		game:    game,
		logger:  logger.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates req and dispatches it. An invalid request never reaches
// the network.
func (e *Executor) Execute(ctx context.Context, s *session.Session, req schemas.ActionRequest) (*schemas.ActionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := observability.ForSession(e.logger, s.ID(), s.ServerURL().Host).With(
		zap.String("action", string(req.Kind)),
		zap.String("village_id", req.VillageID),
	)
	log.Debug("Executing action.")

	var (
		result *schemas.ActionResult
		err    error
	)
	switch req.Kind {
	case schemas.ActionBuild:
		result, err = e.build(ctx, s, req)
	case schemas.ActionTrain:
		result, err = e.train(ctx, s, req)
	case schemas.ActionFarm:
		result, err = e.farm(ctx, s, req)
	case schemas.ActionEvacuate:
		result, err = e.evacuate(ctx, s, req)
	}
	if err != nil {
		log.Warn("Action failed.", zap.String("code", string(schemas.CodeOf(err))), zap.Error(err))
		return nil, err
	}
	log.Info("Action completed.", zap.String("message", result.Message))
	return result, nil
}

func (e *Executor) build(ctx context.Context, s *session.Session, req schemas.ActionRequest) (*schemas.ActionResult, error) {
	const op = "action.build"
	doc, err := e.open(ctx, s, op, e.villagePath(e.game.Paths.Build, req.VillageID))
	if err != nil {
		return nil, err
	}

	control, ok := doc.BuildControl(req.BuildingType)
	if !ok {
		return nil, schemas.Errorf(schemas.ErrCodeFormNotFound, op, nil, "no build form mentions %q", req.BuildingType)
	}

	values := control.Form.HiddenFields()
	if control.Name != "" {
		values.Set(control.Name, control.Value)
	} else {
		values.Set(e.game.Fields.Building, req.BuildingType)
	}

	target, err := doc.Resolve(control.Form.Action)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeFormNotFound, op, "build form action is not a valid url", err)
	}
	resp, err := e.fetcher.Submit(ctx, s, target.String(), values)
	if err != nil {
		return nil, err
	}

	return e.result(schemas.ActionBuild, resp,
		fmt.Sprintf("%s construction submitted", req.BuildingType),
		schemas.BuildOutcome{Building: req.BuildingType, Action: target.RequestURI()},
	), nil
}

func (e *Executor) train(ctx context.Context, s *session.Session, req schemas.ActionRequest) (*schemas.ActionResult, error) {
	const op = "action.train"
	facility, path := e.facilityFor(req.TroopType)
	doc, err := e.open(ctx, s, op, e.villagePath(path, req.VillageID))
	if err != nil {
		return nil, err
	}

	form, ok := doc.FormByAction(strings.TrimPrefix(e.game.Paths.Build, "/"))
	if !ok {
		return nil, schemas.Errorf(schemas.ErrCodeFormNotFound, op, nil, "no training form in the %s", facility)
	}

	values := form.HiddenFields()
	values.Set(e.game.Fields.Quantity, strconv.Itoa(req.Quantity))

	target, err := doc.Resolve(form.Action)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeFormNotFound, op, "training form action is not a valid url", err)
	}
	resp, err := e.fetcher.Submit(ctx, s, target.String(), values)
	if err != nil {
		return nil, err
	}

	return e.result(schemas.ActionTrain, resp,
		fmt.Sprintf("training %d %s in the %s", req.Quantity, req.TroopType, facility),
		schemas.TrainOutcome{TroopType: req.TroopType, Quantity: req.Quantity, Facility: facility},
	), nil
}

// farm only checks that the rally point can send troops. Target selection is
// not implemented, so no raid is dispatched.
func (e *Executor) farm(ctx context.Context, s *session.Session, req schemas.ActionRequest) (*schemas.ActionResult, error) {
	const op = "action.farm"
	doc, err := e.open(ctx, s, op, e.villagePath(e.game.Paths.RallyPoint, req.VillageID))
	if err != nil {
		return nil, err
	}

	ready := e.parser.SendTroopsControls(doc)
	if ready == 0 {
		return nil, schemas.NewError(schemas.ErrCodeFormNotFound, op, "rally point shows no send troops control", nil)
	}

	return e.result(schemas.ActionFarm, doc,
		fmt.Sprintf("rally point ready (%d send controls), no raid dispatched", ready),
		schemas.FarmOutcome{ReadyControls: ready, Synthesized: true},
	), nil
}

// evacuate reads the troops at home from the evacuation view. Nothing is moved.
func (e *Executor) evacuate(ctx context.Context, s *session.Session, req schemas.ActionRequest) (*schemas.ActionResult, error) {
	doc, err := e.open(ctx, s, "action.evacuate", e.villagePath(e.game.Paths.Evacuation, req.VillageID))
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range e.parser.Troops(doc) {
		total += n
	}

	return e.result(schemas.ActionEvacuate, doc,
		fmt.Sprintf("%d troops at home ready to evacuate", total),
		schemas.EvacuationOutcome{TroopsAtHome: total, Destination: e.destination, Synthesized: true},
	), nil
}

func (e *Executor) result(kind schemas.ActionKind, doc *page.Document, msg string, payload interface{}) *schemas.ActionResult {
	res := &schemas.ActionResult{Kind: kind, Success: true, Message: msg, Payload: payload}
	if stock, ok := e.parser.Resources(doc); ok {
		res.Resources = &stock
	}
	return res
}

func (e *Executor) facilityFor(troop string) (string, string) {
	t := strings.ToLower(troop)
	switch {
	case strings.Contains(t, "cavalry"), strings.Contains(t, "knight"):
		return FacilityStable, e.game.Paths.Stable
	case strings.Contains(t, "catapult"), strings.Contains(t, "ram"):
		return FacilityWorkshop, e.game.Paths.Workshop
	default:
		return FacilityBarracks, e.game.Paths.Barracks
	}
}

// open fetches an action page. A login form in its place means the server
// dropped the session: s is invalidated so the caller logs in again.
func (e *Executor) open(ctx context.Context, s *session.Session, op, path string) (*page.Document, error) {
	doc, err := e.fetcher.Fetch(ctx, s, path)
	if err != nil {
		return nil, err
	}
	if e.parser.LooksLikeLoginPage(doc) {
		s.Invalidate()
		return nil, schemas.Errorf(schemas.ErrCodeAuthenticationFailed, op, nil, "server returned the login page for %s", path)
	}
	return doc, nil
}

// villagePath selects villageID through the configured query parameter.
func (e *Executor) villagePath(path, villageID string) string {
	if villageID == "" {
		return path
	}
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(e.game.Paths.VillageParam, villageID)
	u.RawQuery = q.Encode()
	return u.String()
}
