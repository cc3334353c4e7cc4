package haconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// HomeKitDomain is the integration domain of HomeKit bridge entries.
const HomeKitDomain = "homekit"

// Filter modes reported by Bridge.Mode.
const (
	ModeInclude    = "include"
	ModeDomain     = "domain"
	ModeUnfiltered = "unfiltered"
)

// Filter is the entity filter of a HomeKit entry (options.filter).
type Filter struct {
	IncludeDomains  []string `json:"include_domains"`
	ExcludeDomains  []string `json:"exclude_domains"`
	IncludeEntities []string `json:"include_entities"`
	ExcludeEntities []string `json:"exclude_entities"`
}

// Mode classifies the filter the way Home Assistant applies it.
func (f Filter) Mode() string {
	switch {
	case len(f.IncludeEntities) > 0:
		return ModeInclude
	case len(f.IncludeDomains) > 0:
		return ModeDomain
	default:
		return ModeUnfiltered
	}
}

// Bridge summarises one HomeKit entry.
type Bridge struct {
	Title   string
	EntryID string

	// Port is the HAP port from the entry data, empty when unset.
	Port string

	Filter Filter
}

// entryHeader holds the fields used to identify and summarise an entry.
type entryHeader struct {
	EntryID string `json:"entry_id"`
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	Data    struct {
		Port json.RawMessage `json:"port"`
	} `json:"data"`
	Options struct {
		Filter *Filter `json:"filter"`
	} `json:"options"`
}

func (h entryHeader) bridge() Bridge {
	b := Bridge{Title: h.Title, EntryID: h.EntryID}
	if len(h.Data.Port) > 0 && !isNull(h.Data.Port) {
		b.Port = string(bytes.Trim(h.Data.Port, `"`))
	}
	if h.Options.Filter != nil {
		b.Filter = *h.Options.Filter
	}
	return b
}

// Document is a parsed core.config_entries file.
type Document struct {
	root    *object
	data    *object
	entries []json.RawMessage
	headers []entryHeader

	indent          string
	trailingNewline bool
}

// Parse decodes a core.config_entries file.
func Parse(raw []byte) (*Document, error) {
	root, err := parseObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	data, err := root.getObject("data")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	rawEntries, ok := data.get("entries")
	if !ok {
		return nil, fmt.Errorf("%w: data.entries is missing", ErrInvalidDocument)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(rawEntries, &entries); err != nil {
		return nil, fmt.Errorf("%w: data.entries: %w", ErrInvalidDocument, err)
	}

	headers := make([]entryHeader, len(entries))
	for i, e := range entries {
		if err := json.Unmarshal(e, &headers[i]); err != nil {
			return nil, fmt.Errorf("%w: data.entries[%d]: %w", ErrInvalidDocument, i, err)
		}
	}

	return &Document{
		root:            root,
		data:            data,
		entries:         entries,
		headers:         headers,
		indent:          detectIndent(raw),
		trailingNewline: bytes.HasSuffix(raw, []byte("\n")),
	}, nil
}

// Load reads and parses a core.config_entries file.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Bridges returns every HomeKit entry in file order.
func (d *Document) Bridges() []Bridge {
	var bridges []Bridge
	for _, h := range d.headers {
		if h.Domain == HomeKitDomain {
			bridges = append(bridges, h.bridge())
		}
	}
	return bridges
}

// Bridge returns the HomeKit entry with the given title.
func (d *Document) Bridge(title string) (Bridge, error) {
	i, err := d.find(title)
	if err != nil {
		return Bridge{}, err
	}
	return d.headers[i].bridge(), nil
}

// Missing returns the titles that have no HomeKit entry, in the order given.
func (d *Document) Missing(titles []string) []string {
	var missing []string
	for _, t := range titles {
		if _, err := d.find(t); err != nil {
			missing = append(missing, t)
		}
	}
	return missing
}

// SetIncludeEntities switches a bridge to include mode with exactly the given
// entities. include_domains, exclude_domains and exclude_entities are cleared.
// Nothing else in the entry changes.
//
// Parameters:
//   - title: Exact HomeKit bridge title
//   - entityIDs: Entities to expose, in order
//
// Returns:
//   - error: ErrBridgeNotFound or ErrAmbiguousBridge when the title does not
//     match exactly one HomeKit entry
func (d *Document) SetIncludeEntities(title string, entityIDs []string) error {
	i, err := d.find(title)
	if err != nil {
		return err
	}

	entry, err := parseObject(d.entries[i])
	if err != nil {
		return fmt.Errorf("%w: entry %q: %w", ErrInvalidDocument, title, err)
	}
	options, err := entry.getObject("options")
	if err != nil {
		return fmt.Errorf("%w: entry %q: %w", ErrInvalidDocument, title, err)
	}
	filter, err := options.getObject("filter")
	if err != nil {
		return fmt.Errorf("%w: entry %q: options: %w", ErrInvalidDocument, title, err)
	}

	ids := slices.Clone(entityIDs)
	if ids == nil {
		ids = []string{}
	}
	include, err := encodeValue(ids)
	if err != nil {
		return err
	}
	empty := json.RawMessage("[]")

	filter.set("include_domains", empty)
	filter.set("exclude_domains", empty)
	filter.set("include_entities", include)
	filter.set("exclude_entities", empty)

	rawFilter, err := filter.encode()
	if err != nil {
		return err
	}
	options.set("filter", rawFilter)

	rawOptions, err := options.encode()
	if err != nil {
		return err
	}
	entry.set("options", rawOptions)

	rawEntry, err := entry.encode()
	if err != nil {
		return err
	}
	d.entries[i] = rawEntry
	d.headers[i].Options.Filter = &Filter{
		IncludeDomains:  []string{},
		ExcludeDomains:  []string{},
		IncludeEntities: ids,
		ExcludeEntities: []string{},
	}
	return nil
}

// Bytes serialises the document in the layout it was read with.
//
// The layout is re-derived from the detected indent: every object and array
// is written one member per line. Files written by Home Assistant come back
// byte-identical, but a value the user wrote inline, such as
// {"host": "1.2.3.4"}, is reflowed over several lines. Keys, key order and
// scalar bytes (1.50, escapes) are kept as read.
func (d *Document) Bytes() ([]byte, error) {
	d.data.set("entries", encodeArray(d.entries))

	rawData, err := d.data.encode()
	if err != nil {
		return nil, err
	}
	d.root.set("data", rawData)

	compact, err := d.root.encode()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if d.indent == "" {
		err = json.Compact(&out, compact)
	} else {
		err = json.Indent(&out, compact, "", d.indent)
	}
	if err != nil {
		return nil, fmt.Errorf("formatting document: %w", err)
	}

	if d.trailingNewline {
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// find returns the index of the single HomeKit entry titled title.
func (d *Document) find(title string) (int, error) {
	found := -1
	for i, h := range d.headers {
		if h.Domain != HomeKitDomain || h.Title != title {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%w: %q", ErrAmbiguousBridge, title)
		}
		found = i
	}
	if found < 0 {
		return -1, fmt.Errorf("%w: %q", ErrBridgeNotFound, title)
	}
	return found, nil
}

// detectIndent returns the whitespace that starts the first indented line,
// or "" for single-line documents.
func detectIndent(raw []byte) string {
	trimmed := bytes.TrimRight(raw, " \t\r\n")
	nl := bytes.IndexByte(trimmed, '\n')
	if nl < 0 {
		return ""
	}
	rest := trimmed[nl+1:]
	n := 0
	for n < len(rest) && (rest[n] == ' ' || rest[n] == '\t') {
		n++
	}
	if n == 0 {
		return "  "
	}
	return string(rest[:n])
}
