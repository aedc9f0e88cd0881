// internal/page/parser_test.go
package page

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/config"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in   string
		want schemas.Coordinates
		ok   bool
	}{
		{"(0|0)", schemas.Coordinates{X: 0, Y: 0}, true},
		{"(-12|34)", schemas.Coordinates{X: -12, Y: 34}, true},
		{"(142|88)", schemas.Coordinates{X: 142, Y: 88}, true},
		{"(12,34)", schemas.Coordinates{}, false},
		{"Village (3|4) then (5|6)", schemas.Coordinates{X: 3, Y: 4}, true},
		{"(\u202d\u221212\u202c|\u202d34\u202c)", schemas.Coordinates{X: -12, Y: 34}, true},
		{"( 7 | -8 )", schemas.Coordinates{X: 7, Y: -8}, true},
		{"", schemas.Coordinates{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCoordinates(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumberHelpers(t *testing.T) {
	assert.Equal(t, 245, FirstNumber("Population: 245 (+3)"))
	assert.Equal(t, 0, FirstNumber("none"))
	assert.Equal(t, 1200, DigitsOnly("1.200"))
	assert.Equal(t, 800, DigitsOnly(" 800 "))
	assert.Equal(t, 0, DigitsOnly("n/a"))
}

func TestParser_Race(t *testing.T) {
	p := NewDefaultParser()
	tests := []struct {
		name  string
		class string
		want  schemas.Race
	}{
		{"gauls", "gaul nationBig", schemas.RaceGauls},
		{"romans", "nation Romans", schemas.RaceRomans},
		{"teutons", "nationBig TEUTONS", schemas.RaceTeutons},
		{"unknown tribe", "nation huns", schemas.RaceUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, `<html><body><i class="`+tt.class+`"></i></body></html>`)
			assert.Equal(t, tt.want, p.Race(doc))
		})
	}

	t.Run("missing indicator", func(t *testing.T) {
		assert.Equal(t, schemas.RaceUnknown, p.Race(mustDoc(t, "<html><body></body></html>")))
	})
}

func TestParser_Resources(t *testing.T) {
	p := NewDefaultParser()

	res, found := p.Resources(mustDoc(t, gamePageHTML))
	require.True(t, found)
	assert.Equal(t, schemas.Resources{Wood: 1200, Clay: 800, Iron: 500, Crop: 300}, res)

	res, found = p.Resources(mustDoc(t, `<html><body><b id="l1">?</b><b id="l3">4.500</b></body></html>`))
	require.True(t, found)
	assert.Equal(t, schemas.Resources{Wood: 0, Clay: 0, Iron: 4500, Crop: 0}, res)

	res, found = p.Resources(mustDoc(t, `<html><body></body></html>`))
	assert.False(t, found)
	assert.Zero(t, res.Total())
}

func TestParser_GamePage(t *testing.T) {
	p := NewDefaultParser()
	doc := mustDoc(t, gamePageHTML)

	assert.Equal(t, schemas.Coordinates{X: -12, Y: 34}, p.Coordinates(doc))
	assert.Equal(t, 245, p.Population(doc))
	assert.Equal(t, "Capital", p.VillageName(doc))
	assert.False(t, p.LooksLikeLoginPage(doc))
	assert.Equal(t, 0, p.SendTroopsControls(doc))

	assert.Equal(t, map[string]int{"Granary": 3, "Main Building": 5, "Warehouse": 2}, p.Buildings(doc))
	assert.Equal(t, map[string]int{"Phalanx": 25, "Theutates Thunder": 4}, p.Troops(doc))

	villages := p.Villages(doc)
	want := []schemas.Village{
		{ID: "101", Name: "Capital", Active: true, Coordinates: schemas.Coordinates{X: -12, Y: 34}},
		{ID: "202", Name: "Outpost", Coordinates: schemas.Coordinates{X: 5, Y: -7}},
	}
	if diff := cmp.Diff(want, villages); diff != "" {
		t.Errorf("Villages() mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_PlayerState(t *testing.T) {
	p := NewDefaultParser()
	state := p.PlayerState(mustDoc(t, gamePageHTML))

	assert.Equal(t, schemas.RaceGauls, state.Race)
	require.Len(t, state.Villages, 2)

	active, ok := state.ActiveVillage()
	require.True(t, ok)
	assert.Equal(t, "101", active.ID)
	assert.Equal(t, 245, active.Population)
	assert.Equal(t, 1200, active.Resources.Wood)
	assert.Equal(t, 3, active.Buildings["Granary"])
	assert.Equal(t, 25, active.Troops["Phalanx"])

	other := state.Villages[1]
	assert.Zero(t, other.Population, "only the selected village gets details")
	assert.Nil(t, other.Buildings)
}

func TestParser_PlayerStateWithoutVillageList(t *testing.T) {
	p := NewDefaultParser()
	doc := mustDoc(t, `<html><body>
		<div class="roman nation"></div>
		<span class="coordinates">(1|2)</span>
		<b id="l1">10</b><b id="l2">20</b><b id="l3">30</b><b id="l4">40</b>
	</body></html>`)

	state := p.PlayerState(doc)
	assert.Equal(t, schemas.RaceRomans, state.Race)
	require.Len(t, state.Villages, 1)
	assert.True(t, state.Villages[0].Active)
	assert.Equal(t, schemas.Coordinates{X: 1, Y: 2}, state.Villages[0].Coordinates)
	assert.Equal(t, 100, state.Villages[0].Resources.Total())
}

func TestParser_SendTroopsAndLoginMarkers(t *testing.T) {
	p := NewDefaultParser()
	rally := mustDoc(t, `<html><body>
		<a class="sendTroops" href="#">Send</a>
		<button class="a2b sendTroops">Send troops</button>
	</body></html>`)
	assert.Equal(t, 2, p.SendTroopsControls(rally))

	assert.True(t, p.LooksLikeLoginPage(mustDoc(t, loginPageHTML)))
}

func TestNewParser_Errors(t *testing.T) {
	markup := config.NewDefaultConfig().Game.Markup

	bad := markup
	bad.Resources = bad.Resources[:3]
	_, err := NewParser(bad, "newdid")
	assert.Error(t, err)

	bad = markup
	bad.Race = "//*[contains(@class,"
	_, err = NewParser(bad, "newdid")
	assert.Error(t, err)

	bad = markup
	bad.Resources = []string{"//a", "", "//b", "//c"}
	_, err = NewParser(bad, "newdid")
	assert.Error(t, err)

	// Optional selectors may be disabled.
	ok := markup
	ok.TroopRows = ""
	p, err := NewParser(ok, "")
	require.NoError(t, err)
	assert.Empty(t, p.Troops(mustDoc(t, gamePageHTML)))
}
