package haconfig

import (
	"errors"
	"fmt"
	"slices"
)

// Verify parses raw and checks that it is a structurally sound entries file
// and that every bridge in expected is in include mode with exactly the
// listed entities, in order.
func Verify(raw []byte, expected map[string][]string) error {
	doc, err := Parse(raw)
	if err != nil {
		return err
	}

	var errs []error
	for i, h := range doc.headers {
		if h.EntryID == "" || h.Domain == "" {
			errs = append(errs, fmt.Errorf("%w: data.entries[%d] lacks entry_id or domain", ErrInvalidDocument, i))
		}
	}

	for _, title := range sortedKeys(expected) {
		b, err := doc.Bridge(title)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := checkIncludeFilter(b, expected[title]); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func checkIncludeFilter(b Bridge, want []string) error {
	f := b.Filter
	switch {
	case !slices.Equal(f.IncludeEntities, want):
		return fmt.Errorf("%w: %q has %d include_entities, want %d", ErrFilterMismatch, b.Title, len(f.IncludeEntities), len(want))
	case len(f.IncludeDomains) > 0 || len(f.ExcludeDomains) > 0 || len(f.ExcludeEntities) > 0:
		return fmt.Errorf("%w: %q still has domain or exclude filters", ErrFilterMismatch, b.Title)
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
