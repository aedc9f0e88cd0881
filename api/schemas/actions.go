package schemas

import (
	"fmt"
	"strings"
	"time"
)

// -- Action Schemas --

// ActionKind identifies one of the supported village actions.
type ActionKind string

const (
	ActionBuild    ActionKind = "build"
	ActionTrain    ActionKind = "train"
	ActionFarm     ActionKind = "farm"
	ActionEvacuate ActionKind = "evacuate"
)

// ParseActionKind converts user input into an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case ActionBuild, ActionTrain, ActionFarm, ActionEvacuate:
		return kind, nil
	}
	return "", NewError(ErrCodeInvalidAction, "parse_action", fmt.Sprintf("unknown action kind %q", s), nil)
}

// ActionRequest describes a single action against one village.
type ActionRequest struct {
	Kind         ActionKind `json:"kind"`
	VillageID    string     `json:"village_id,omitempty"`
	BuildingType string     `json:"building_type,omitempty"`
	TroopType    string     `json:"troop_type,omitempty"`
	Quantity     int        `json:"quantity,omitempty"`
}

// Validate checks the request before any network activity takes place.
func (r ActionRequest) Validate() error {
	switch r.Kind {
	case ActionBuild:
		if strings.TrimSpace(r.BuildingType) == "" {
			return NewError(ErrCodeInvalidAction, "validate", "build requires a building type", nil)
		}
	case ActionTrain:
		if strings.TrimSpace(r.TroopType) == "" {
			return NewError(ErrCodeInvalidAction, "validate", "train requires a troop type", nil)
		}
		if r.Quantity <= 0 {
			return NewError(ErrCodeInvalidAction, "validate", fmt.Sprintf("train quantity must be positive, got %d", r.Quantity), nil)
		}
	case ActionFarm, ActionEvacuate:
	default:
		return NewError(ErrCodeInvalidAction, "validate", fmt.Sprintf("unknown action kind %q", r.Kind), nil)
	}
	return nil
}

// ActionResult is the outcome of one executed ActionRequest.
type ActionResult struct {
	Kind    ActionKind  `json:"kind"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Payload interface{} `json:"payload,omitempty"`
	// Resources is the stock snapshot parsed from the response page, when it had one.
	Resources *Resources `json:"resources,omitempty"`
}

// BuildOutcome is the payload of a successful build submission.
type BuildOutcome struct {
	Building string `json:"building"`
	Action   string `json:"action"`
}

// TrainOutcome is the payload of a successful training submission.
type TrainOutcome struct {
	TroopType string `json:"troop_type"`
	Quantity  int    `json:"quantity"`
	Facility  string `json:"facility"`
}

// FarmOutcome reports rally point readiness. No raid is dispatched, so
// AttacksSent and ResourcesGained stay zero and Synthesized is always true.
type FarmOutcome struct {
	ReadyControls   int       `json:"ready_controls"`
	AttacksSent     int       `json:"attacks_sent"`
	ResourcesGained Resources `json:"resources_gained"`
	Synthesized     bool      `json:"synthesized"`
}

// EvacuationOutcome reports what the evacuation view showed. TroopsAtHome is
// parsed from the page; nothing is moved.
type EvacuationOutcome struct {
	TroopsAtHome int    `json:"troops_at_home"`
	Destination  string `json:"destination"`
	Synthesized  bool   `json:"synthesized"`
}

// ActivityEntry is one recorded action outcome, handed to an activity recorder.
type ActivityEntry struct {
	ID        string                 `json:"id"`
	Account   string                 `json:"account"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
