package analyze

import (
	"cmp"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/homekit-bridge-manager/internal/filter"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/config"
	"github.com/nerrad567/homekit-bridge-manager/internal/registry"
)

// UnassignedFloor groups areas that have no floor.
const UnassignedFloor = "Unassigned Floor"

// Reader is a registry that also knows about floors.
type Reader interface {
	registry.Reader
	Floor(id string) (registry.Floor, bool)
}

// AreaCount is the number of included entities in one area.
type AreaCount struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Total    int            `json:"total"`
	ByDomain map[string]int `json:"by_domain"`
}

// FloorGroup is a floor and its areas, largest first. ID is empty for the
// unassigned group.
type FloorGroup struct {
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name"`
	Level *int        `json:"level,omitempty"`
	Total int         `json:"total"`
	Areas []AreaCount `json:"areas"`
}

// Analysis is the result of Run.
type Analysis struct {
	Floors []FloorGroup `json:"floors"`
	Total  int          `json:"total"`

	// NoArea counts included entities with no resolvable area.
	NoArea int `json:"no_area"`
}

// Suggestion is one proposed bridge.
type Suggestion struct {
	Name  string   `json:"name"`
	Areas []string `json:"areas"`
	Count int      `json:"count"`
}

// Run counts included entities per area and groups the areas by floor.
// Floors are ordered by level, then name; the unassigned group is last.
func Run(r Reader, f *filter.Filter) *Analysis {
	counts := make(map[string]*AreaCount)
	var order []string
	a := &Analysis{}

	for _, e := range r.Entities() {
		var device *registry.Device
		if e.DeviceID != "" {
			if d, ok := r.Device(e.DeviceID); ok {
				device = &d
			}
		}
		if !f.Include(e, device) {
			continue
		}

		ref := registry.AreaRef(e, device)
		area, ok := r.Area(ref)
		if ref == "" || !ok {
			a.NoArea++
			continue
		}

		c, seen := counts[area.ID]
		if !seen {
			c = &AreaCount{ID: area.ID, Name: area.Name, ByDomain: make(map[string]int)}
			counts[area.ID] = c
			order = append(order, area.ID)
		}
		c.Total++
		c.ByDomain[e.Domain()]++
		a.Total++
	}

	groups := make(map[string]*FloorGroup)
	for _, id := range order {
		area, _ := r.Area(id)
		group := FloorGroup{Name: UnassignedFloor}
		if fl, ok := r.Floor(area.FloorID); area.FloorID != "" && ok {
			group = FloorGroup{ID: fl.ID, Name: fl.Name, Level: fl.Level}
		}

		g, ok := groups[group.ID]
		if !ok {
			g = &group
			groups[group.ID] = g
		}
		g.Areas = append(g.Areas, *counts[id])
		g.Total += counts[id].Total
	}

	for _, g := range groups {
		slices.SortStableFunc(g.Areas, byTotalDesc)
		a.Floors = append(a.Floors, *g)
	}
	slices.SortFunc(a.Floors, compareFloors)

	return a
}

// MinBridges is the fewest bridges that could hold every counted entity.
func (a *Analysis) MinBridges(capacity int) int {
	if capacity <= 0 || a.Total == 0 {
		return 0
	}
	return (a.Total + capacity - 1) / capacity
}

// Suggest proposes bridges floor by floor. An area larger than capacity on
// its own still gets a bridge; Over reports it. Floors sharing a display
// name are told apart by their ID.
func (a *Analysis) Suggest(capacity int) []Suggestion {
	var out []Suggestion

	names := make(map[string]int, len(a.Floors))
	for _, g := range a.Floors {
		names[g.Name]++
	}

	for _, g := range a.Floors {
		name := g.Name
		if names[name] > 1 && g.ID != "" {
			name = fmt.Sprintf("%s (%s)", g.Name, g.ID)
		}

		if g.Total <= capacity {
			s := Suggestion{Name: name, Count: g.Total}
			for _, area := range g.Areas {
				s.Areas = append(s.Areas, area.Name)
			}
			out = append(out, s)
			continue
		}

		var current *Suggestion
		split := 0
		for _, area := range g.Areas {
			if current == nil || current.Count+area.Total > capacity {
				if current != nil {
					out = append(out, *current)
				}
				current = &Suggestion{Name: fmt.Sprintf("%s %s", name, suffix(split))}
				split++
			}
			current.Areas = append(current.Areas, area.Name)
			current.Count += area.Total
		}
		if current != nil {
			out = append(out, *current)
		}
	}

	return out
}

// Over reports whether the suggestion exceeds capacity.
func (s Suggestion) Over(capacity int) bool {
	return s.Count > capacity
}

// Snippet renders suggestions as a config bridges section.
func Snippet(suggestions []Suggestion) ([]byte, error) {
	doc := struct {
		Bridges []config.BridgeConfig `yaml:"bridges"`
	}{}
	for _, s := range suggestions {
		doc.Bridges = append(doc.Bridges, config.BridgeConfig{Name: s.Name, Areas: s.Areas})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding bridges snippet: %w", err)
	}
	return out, nil
}

func byTotalDesc(x, y AreaCount) int {
	if c := cmp.Compare(y.Total, x.Total); c != 0 {
		return c
	}
	return cmp.Compare(x.Name, y.Name)
}

func compareFloors(x, y FloorGroup) int {
	xu, yu := x.ID == "", y.ID == ""
	if xu != yu {
		if xu {
			return 1
		}
		return -1
	}
	switch {
	case x.Level != nil && y.Level != nil:
		if c := cmp.Compare(*x.Level, *y.Level); c != 0 {
			return c
		}
	case x.Level != nil:
		return -1
	case y.Level != nil:
		return 1
	}
	return cmp.Or(cmp.Compare(x.Name, y.Name), cmp.Compare(x.ID, y.ID))
}

// suffix maps 0, 1, … 25, 26 to A, B, … Z, AA.
func suffix(i int) string {
	s := ""
	for i++; i > 0; i = (i - 1) / 26 {
		s = string(rune('A'+(i-1)%26)) + s
	}
	return s
}
