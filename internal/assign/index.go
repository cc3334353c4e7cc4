package assign

import (
	"errors"
	"slices"

	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/config"
	"github.com/nerrad567/homekit-bridge-manager/internal/registry"
)

// AreaIndex maps area references (IDs or display names) to bridge names.
type AreaIndex map[string]string

// BuildAreaIndex indexes the configured area references. A reference listed
// by two bridges, or twice by one bridge, is a *ConfigError.
func BuildAreaIndex(bridges []config.BridgeConfig) (AreaIndex, error) {
	idx := make(AreaIndex)
	for _, b := range bridges {
		for _, ref := range b.Areas {
			if prev, ok := idx[ref]; ok {
				return nil, &ConfigError{Area: ref, Bridges: []string{prev, b.Name}, Msg: "is claimed by more than one bridge"}
			}
			idx[ref] = b.Name
		}
	}
	return idx, nil
}

// BridgeFor returns the bridge owning an area. The area ID is tried first,
// then its display name. A conflicting ID and name claim is a *ConfigError.
func (idx AreaIndex) BridgeFor(area registry.Area) (string, bool, error) {
	byID, idOK := idx[area.ID]
	byName, nameOK := idx[area.Name]

	switch {
	case idOK && nameOK && byID != byName:
		return "", false, &ConfigError{Area: area.Name, Bridges: []string{byID, byName}, Msg: "is claimed by ID and by name in different bridges"}
	case idOK:
		return byID, true, nil
	case nameOK:
		return byName, true, nil
	default:
		return "", false, nil
	}
}

// Resolve checks every configured reference against the full area list,
// independent of which entities exist. Each area claimed by ID and by name in
// different bridges is reported as a *ConfigError, all of them joined.
// References matching no area are returned sorted.
func (idx AreaIndex) Resolve(areas []registry.Area) ([]string, error) {
	matched := make(map[string]bool, len(idx))
	var errs []error

	for _, area := range areas {
		if _, _, err := idx.BridgeFor(area); err != nil {
			errs = append(errs, err)
		}
		matched[area.ID] = true
		matched[area.Name] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var unmatched []string
	for ref := range idx {
		if !matched[ref] {
			unmatched = append(unmatched, ref)
		}
	}
	slices.Sort(unmatched)
	return unmatched, nil
}
