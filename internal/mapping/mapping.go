package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/nerrad567/homekit-bridge-manager/internal/atomicfile"
)

// ErrInvalidArtifact is returned when an artifact fails structural checks.
var ErrInvalidArtifact = errors.New("mapping: invalid artifact")

// Entry is one entity placed in a bridge.
type Entry struct {
	EntityID     string `json:"entity_id"`
	FriendlyName string `json:"friendly_name"`
}

// Artifact maps bridge names to their ordered entity entries.
type Artifact struct {
	Bridges map[string][]Entry `json:"bridges"`
}

// New returns an artifact with an empty list for every named bridge.
func New(bridgeNames ...string) *Artifact {
	a := &Artifact{Bridges: make(map[string][]Entry, len(bridgeNames))}
	for _, name := range bridgeNames {
		a.Bridges[name] = []Entry{}
	}
	return a
}

// Add appends an entry to a bridge, creating the bridge if needed.
func (a *Artifact) Add(bridge string, e Entry) {
	if a.Bridges == nil {
		a.Bridges = make(map[string][]Entry)
	}
	a.Bridges[bridge] = append(a.Bridges[bridge], e)
}

// Names returns the bridge names in sorted order.
func (a *Artifact) Names() []string {
	names := make([]string, 0, len(a.Bridges))
	for name := range a.Bridges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntityIDs returns the entity IDs of a bridge in artifact order.
func (a *Artifact) EntityIDs(bridge string) []string {
	entries := a.Bridges[bridge]
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.EntityID
	}
	return ids
}

// Count returns the number of entries in a bridge.
func (a *Artifact) Count(bridge string) int {
	return len(a.Bridges[bridge])
}

// Total returns the number of entries across all bridges.
func (a *Artifact) Total() int {
	n := 0
	for _, entries := range a.Bridges {
		n += len(entries)
	}
	return n
}

// IncludeLists returns every bridge's entity IDs keyed by bridge name.
func (a *Artifact) IncludeLists() map[string][]string {
	lists := make(map[string][]string, len(a.Bridges))
	for name := range a.Bridges {
		lists[name] = a.EntityIDs(name)
	}
	return lists
}

// Validate checks names are present and no entity appears twice.
func (a *Artifact) Validate() error {
	var errs []string

	if a.Bridges == nil {
		return fmt.Errorf("%w: missing \"bridges\" object", ErrInvalidArtifact)
	}

	seen := make(map[string]string)
	for _, name := range a.Names() {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "bridge name is empty")
		}
		for i, e := range a.Bridges[name] {
			if strings.TrimSpace(e.EntityID) == "" {
				errs = append(errs, fmt.Sprintf("%s[%d]: entity_id is empty", name, i))
				continue
			}
			if prev, ok := seen[e.EntityID]; ok {
				errs = append(errs, fmt.Sprintf("%s appears in both %q and %q", e.EntityID, prev, name))
				continue
			}
			seen[e.EntityID] = name
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidArtifact, strings.Join(errs, "; "))
	}
	return nil
}

// Marshal encodes the artifact deterministically.
func Marshal(a *Artifact) ([]byte, error) {
	out := a
	if a.Bridges == nil {
		out = New()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// json.Encoder sorts map keys and terminates with a newline.
	if err := enc.Encode(normalize(out)); err != nil {
		return nil, fmt.Errorf("encoding artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// normalize replaces nil entry slices so empty bridges encode as [].
func normalize(a *Artifact) *Artifact {
	n := &Artifact{Bridges: make(map[string][]Entry, len(a.Bridges))}
	for name, entries := range a.Bridges {
		if entries == nil {
			entries = []Entry{}
		}
		n.Bridges[name] = entries
	}
	return n
}

// Unmarshal decodes a JSON or JSONC artifact and validates it.
func Unmarshal(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(jsonc.ToJSON(data), &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Load reads an artifact from disk.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping: %w", err)
	}

	a, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Save writes the artifact atomically.
func Save(path string, a *Artifact) error {
	data, err := Marshal(a)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(path, data, atomicfile.Mode(path, 0644)); err != nil {
		return fmt.Errorf("writing mapping %s: %w", path, err)
	}
	return nil
}
