// internal/page/parser.go
package page

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/config"
)

// Extractor reads game state out of a Document. It is the only place that
// knows what the game markup looks like.
type Extractor interface {
	Race(doc *Document) schemas.Race
	Coordinates(doc *Document) schemas.Coordinates
	Population(doc *Document) int
	Resources(doc *Document) (schemas.Resources, bool)
	VillageName(doc *Document) string
	Villages(doc *Document) []schemas.Village
	Buildings(doc *Document) map[string]int
	Troops(doc *Document) map[string]int
	SendTroopsControls(doc *Document) int
	LooksLikeLoginPage(doc *Document) bool
	PlayerState(doc *Document) *schemas.PlayerState
}

var (
	coordinatePattern = regexp.MustCompile(`\(\s*(-?\d+)\s*\|\s*(-?\d+)\s*\)`)
	digitRun          = regexp.MustCompile(`\d+`)
	// The game wraps coordinates in bidi isolation marks and uses U+2212 for minus.
	bidiReplacer = strings.NewReplacer(
		"\u202d", "", "\u202c", "", "\u200e", "", "\u200f", "",
		"\u2066", "", "\u2067", "", "\u2068", "", "\u2069", "",
		"\u2212", "-",
	)
)

// Parser implements Extractor with XPath selectors compiled from config.
type Parser struct {
	race          *xpath.Expr
	coordinates   *xpath.Expr
	population    *xpath.Expr
	resources     [4]*xpath.Expr
	villageName   *xpath.Expr
	villageList   *xpath.Expr
	buildingSlots *xpath.Expr
	troopRows     *xpath.Expr
	sendTroops    *xpath.Expr
	villageParam  string
}

var _ Extractor = (*Parser)(nil)

// NewParser compiles every selector in markup. Empty optional selectors disable
// the matching extractor; the four resource selectors are required.
func NewParser(markup config.MarkupConfig, villageParam string) (*Parser, error) {
	if len(markup.Resources) != 4 {
		return nil, fmt.Errorf("markup needs exactly 4 resource selectors, got %d", len(markup.Resources))
	}
	p := &Parser{villageParam: villageParam}
	if p.villageParam == "" {
		p.villageParam = "newdid"
	}

	compile := func(field, expr string, dst **xpath.Expr) error {
		if strings.TrimSpace(expr) == "" {
			return nil
		}
		compiled, err := xpath.Compile(expr)
		if err != nil {
			return fmt.Errorf("invalid %s selector %q: %w", field, expr, err)
		}
		*dst = compiled
		return nil
	}

	steps := []struct {
		field string
		expr  string
		dst   **xpath.Expr
	}{
		{"race", markup.Race, &p.race},
		{"coordinates", markup.Coordinates, &p.coordinates},
		{"population", markup.Population, &p.population},
		{"village_name", markup.VillageName, &p.villageName},
		{"village_list", markup.VillageList, &p.villageList},
		{"building_slots", markup.BuildingSlots, &p.buildingSlots},
		{"troop_rows", markup.TroopRows, &p.troopRows},
		{"send_troops", markup.SendTroops, &p.sendTroops},
	}
	for _, s := range steps {
		if err := compile(s.field, s.expr, s.dst); err != nil {
			return nil, err
		}
	}
	for i, expr := range markup.Resources {
		if strings.TrimSpace(expr) == "" {
			return nil, fmt.Errorf("resource selector %d is empty", i)
		}
		if err := compile(fmt.Sprintf("resources[%d]", i), expr, &p.resources[i]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewDefaultParser builds a Parser from the default markup.
func NewDefaultParser() *Parser {
	game := config.NewDefaultConfig().Game
	p, err := NewParser(game.Markup, game.Paths.VillageParam)
	if err != nil {
		panic(fmt.Sprintf("default markup does not compile: %v", err))
	}
	return p
}

// Race reads the class attribute of the race indicator.
func (p *Parser) Race(doc *Document) schemas.Race {
	n := doc.selectOne(p.race)
	if n == nil {
		return schemas.RaceUnknown
	}
	return schemas.ParseRace(attr(n, "class"))
}

// Coordinates reads the first "(x|y)" pair of the coordinates element.
func (p *Parser) Coordinates(doc *Document) schemas.Coordinates {
	c, _ := ParseCoordinates(nodeText(doc.selectOne(p.coordinates)))
	return c
}

// Population returns the first digit run of the population element.
func (p *Parser) Population(doc *Document) int {
	return FirstNumber(nodeText(doc.selectOne(p.population)))
}

// Resources reads wood, clay, iron and crop in that order. found is false
// when none of the four elements is on the page.
func (p *Parser) Resources(doc *Document) (schemas.Resources, bool) {
	var values [4]int
	found := false
	for i, expr := range p.resources {
		n := doc.selectOne(expr)
		if n == nil {
			continue
		}
		found = true
		values[i] = DigitsOnly(nodeText(n))
	}
	return schemas.Resources{Wood: values[0], Clay: values[1], Iron: values[2], Crop: values[3]}, found
}

// VillageName returns the name of the selected village.
func (p *Parser) VillageName(doc *Document) string {
	return collapseSpace(nodeText(doc.selectOne(p.villageName)))
}

// Villages lists the entries of the village switcher.
func (p *Parser) Villages(doc *Document) []schemas.Village {
	var villages []schemas.Village
	for _, entry := range doc.selectAll(p.villageList) {
		v := schemas.Village{
			ID:     p.villageID(entry),
			Name:   entryName(entry),
			Active: hasClass(entry, "active"),
		}
		v.Coordinates, _ = ParseCoordinates(nodeText(entry))
		if v.ID == "" && v.Name == "" {
			continue
		}
		villages = append(villages, v)
	}
	return villages
}

func (p *Parser) villageID(entry *html.Node) string {
	if id := attr(entry, "data-did"); id != "" {
		return id
	}
	for _, a := range htmlquery.Find(entry, ".//a[@href] | self::a[@href]") {
		if id := queryParam(attr(a, "href"), p.villageParam); id != "" {
			return id
		}
	}
	return ""
}

func entryName(entry *html.Node) string {
	if n := htmlquery.FindOne(entry, ".//*[contains(@class,'name')]"); n != nil {
		return collapseSpace(nodeText(n))
	}
	text := coordinatePattern.ReplaceAllString(bidiReplacer.Replace(nodeText(entry)), "")
	return collapseSpace(text)
}

// Buildings maps building names to levels. Slots without a name are skipped.
func (p *Parser) Buildings(doc *Document) map[string]int {
	buildings := make(map[string]int)
	for _, slot := range doc.selectAll(p.buildingSlots) {
		name := firstNonEmpty(attr(slot, "data-name"), attr(slot, "title"), attr(slot, "alt"))
		if name == "" {
			if n := htmlquery.FindOne(slot, ".//*[contains(@class,'name')]"); n != nil {
				name = nodeText(n)
			}
		}
		name = collapseSpace(name)
		if name == "" {
			continue
		}
		level := FirstNumber(attr(slot, "data-level"))
		if level == 0 {
			if n := htmlquery.FindOne(slot, ".//*[contains(@class,'level')]"); n != nil {
				level = FirstNumber(nodeText(n))
			}
		}
		if current, seen := buildings[name]; !seen || level > current {
			buildings[name] = level
		}
	}
	return buildings
}

// Troops maps troop types to the counts shown in the troop table.
func (p *Parser) Troops(doc *Document) map[string]int {
	troops := make(map[string]int)
	for _, row := range doc.selectAll(p.troopRows) {
		var name string
		if n := htmlquery.FindOne(row, ".//*[contains(@class,'un')]"); n != nil {
			name = nodeText(n)
		}
		if name == "" {
			if img := htmlquery.FindOne(row, ".//img[@alt]"); img != nil {
				name = attr(img, "alt")
			}
		}
		name = collapseSpace(name)
		if name == "" {
			continue
		}
		count := 0
		if n := htmlquery.FindOne(row, ".//*[contains(@class,'num')]"); n != nil {
			count = DigitsOnly(nodeText(n))
		}
		troops[name] += count
	}
	return troops
}

// SendTroopsControls counts the "send troops" controls on a rally point page.
func (p *Parser) SendTroopsControls(doc *Document) int {
	return len(doc.selectAll(p.sendTroops))
}

// LooksLikeLoginPage reports whether the page still carries both login markers.
func (p *Parser) LooksLikeLoginPage(doc *Document) bool {
	text := doc.LowerText()
	return strings.Contains(text, "login") && strings.Contains(text, "password")
}

// PlayerState assembles the account state from a game page. The selected
// village gets the detailed fields; the others only carry what the village
// switcher shows.
func (p *Parser) PlayerState(doc *Document) *schemas.PlayerState {
	state := &schemas.PlayerState{
		Race:     p.Race(doc),
		Villages: p.Villages(doc),
	}

	activeIdx := -1
	for i := range state.Villages {
		if state.Villages[i].Active {
			activeIdx = i
			break
		}
	}
	if activeIdx == -1 {
		if len(state.Villages) == 0 {
			state.Villages = append(state.Villages, schemas.Village{})
		}
		activeIdx = 0
		state.Villages[0].Active = true
	}

	active := &state.Villages[activeIdx]
	if name := p.VillageName(doc); name != "" {
		active.Name = name
	}
	if c, ok := ParseCoordinates(nodeText(doc.selectOne(p.coordinates))); ok {
		active.Coordinates = c
	}
	active.Population = p.Population(doc)
	active.Resources, _ = p.Resources(doc)
	active.Buildings = p.Buildings(doc)
	active.Troops = p.Troops(doc)
	return state
}

// ParseCoordinates finds the first "(x|y)" pair in text.
func ParseCoordinates(text string) (schemas.Coordinates, bool) {
	m := coordinatePattern.FindStringSubmatch(bidiReplacer.Replace(text))
	if m == nil {
		return schemas.Coordinates{}, false
	}
	x, errX := strconv.Atoi(m[1])
	y, errY := strconv.Atoi(m[2])
	if errX != nil || errY != nil {
		return schemas.Coordinates{}, false
	}
	return schemas.Coordinates{X: x, Y: y}, true
}

// FirstNumber returns the first run of digits in text, or 0.
func FirstNumber(text string) int {
	run := digitRun.FindString(text)
	if run == "" {
		return 0
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return 0
	}
	return n
}

// DigitsOnly keeps only the digits of text ("1.200" reads as 1200), or 0.
func DigitsOnly(text string) int {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

func queryParam(ref, key string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
