package schemas

import "strings"

// -- Player and Village Schemas --

// Race is the tribe a player account belongs to.
type Race string

const (
	RaceRomans  Race = "Romans"
	RaceTeutons Race = "Teutons"
	RaceGauls   Race = "Gauls"
	RaceUnknown Race = "Unknown"
)

// ParseRace maps a free-form tribe name (or a CSS class fragment) to a Race.
func ParseRace(s string) Race {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "roman"):
		return RaceRomans
	case strings.Contains(lower, "teuton"):
		return RaceTeutons
	case strings.Contains(lower, "gaul"):
		return RaceGauls
	default:
		return RaceUnknown
	}
}

// Credentials are the login details for one game account.
// They are transient: nothing in this module persists or logs them.
type Credentials struct {
	Email     string `json:"email"`
	Password  string `json:"-"`
	ServerURL string `json:"server_url"`
}

// Coordinates locate a village on the world map.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Resources holds the four stock values of a village.
type Resources struct {
	Wood int `json:"wood"`
	Clay int `json:"clay"`
	Iron int `json:"iron"`
	Crop int `json:"crop"`
}

// Total returns the sum of all four resources.
func (r Resources) Total() int {
	return r.Wood + r.Clay + r.Iron + r.Crop
}

// Village is a snapshot of one village as last parsed from the game.
type Village struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Coordinates Coordinates    `json:"coordinates"`
	Population  int            `json:"population"`
	Resources   Resources      `json:"resources"`
	Buildings   map[string]int `json:"buildings"`
	Troops      map[string]int `json:"troops"`
	// Active marks the village the server currently has selected.
	Active bool `json:"active"`
}

// PlayerState is the account state extracted right after login.
type PlayerState struct {
	Race     Race      `json:"race"`
	Villages []Village `json:"villages"`
}

// ActiveVillage returns the selected village, falling back to the first one.
func (p *PlayerState) ActiveVillage() (Village, bool) {
	if p == nil || len(p.Villages) == 0 {
		return Village{}, false
	}
	for _, v := range p.Villages {
		if v.Active {
			return v, true
		}
	}
	return p.Villages[0], true
}
