package assign

import (
	"errors"
	"fmt"

	"github.com/nerrad567/homekit-bridge-manager/internal/filter"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/config"
	"github.com/nerrad567/homekit-bridge-manager/internal/mapping"
	"github.com/nerrad567/homekit-bridge-manager/internal/registry"
)

// DefaultCapacity is the HomeKit accessory limit per bridge.
const DefaultCapacity = config.MaxCapacity

// Result is the outcome of an assignment run.
type Result struct {
	Artifact *mapping.Artifact

	// Capacity is the limit each bridge was checked against.
	Capacity int

	// Errors holds one *CapacityError per overfull bridge, in bridge name order.
	Errors []error

	// Unassigned lists included entities whose area no bridge claims.
	Unassigned []mapping.Entry

	// UnmatchedAreas lists configured area references that name no area in
	// the registry. Only filled when the reader is a registry.AreaLister.
	UnmatchedAreas []string

	ExcludedByReason      map[filter.Reason]int
	ExcludedByIntegration map[string]int
}

// Err joins the capacity errors, or returns nil when every bridge fits.
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// Excluded returns the total number of filtered-out entities.
func (r *Result) Excluded() int {
	n := 0
	for _, c := range r.ExcludedByReason {
		n += c
	}
	return n
}

// Assign maps every entity the filter accepts into the bridge claiming its
// area. A non-positive capacity means DefaultCapacity.
//
// Parameters:
//   - bridges: Configured bridges and the areas they claim
//   - reader: Registry view; a registry.AreaLister also gets every area
//     reference checked up front
//   - f: Compiled exclusion policy
//   - capacity: Per-bridge limit, at most config.MaxCapacity
//
// Returns:
//   - *Result: Artifact with every configured bridge, plus capacity errors
//   - error: A *ConfigError for conflicting claims or an invalid capacity.
//     Capacity violations are reported in Result.Errors, not here.
func Assign(bridges []config.BridgeConfig, reader registry.Reader, f *filter.Filter, capacity int) (*Result, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity > config.MaxCapacity {
		return nil, &ConfigError{Msg: fmt.Sprintf("capacity %d exceeds the HomeKit limit of %d", capacity, config.MaxCapacity)}
	}

	idx, err := BuildAreaIndex(bridges)
	if err != nil {
		return nil, err
	}

	var unmatched []string
	if lister, ok := reader.(registry.AreaLister); ok {
		if unmatched, err = idx.Resolve(lister.Areas()); err != nil {
			return nil, err
		}
	}

	names := make([]string, len(bridges))
	for i, b := range bridges {
		names[i] = b.Name
	}

	res := &Result{
		Artifact:              mapping.New(names...),
		Capacity:              capacity,
		UnmatchedAreas:        unmatched,
		ExcludedByReason:      make(map[filter.Reason]int),
		ExcludedByIntegration: make(map[string]int),
	}

	for _, e := range reader.Entities() {
		var device *registry.Device
		if e.DeviceID != "" {
			if d, ok := reader.Device(e.DeviceID); ok {
				device = &d
			}
		}

		decision := f.Evaluate(e, device)
		if !decision.Included {
			res.ExcludedByReason[decision.Reason]++
			if decision.Reason == filter.ReasonIntegration {
				res.ExcludedByIntegration[decision.Integration]++
			}
			continue
		}

		entry := mapping.Entry{EntityID: e.EntityID, FriendlyName: e.FriendlyName()}

		area, ok := reader.Area(registry.AreaRef(e, device))
		if !ok {
			res.Unassigned = append(res.Unassigned, entry)
			continue
		}

		bridge, ok, err := idx.BridgeFor(area)
		if err != nil {
			return nil, err
		}
		if !ok {
			res.Unassigned = append(res.Unassigned, entry)
			continue
		}

		res.Artifact.Add(bridge, entry)
	}

	res.Errors = CheckCapacity(res.Artifact, capacity)
	return res, nil
}

// CheckCapacity returns a *CapacityError for every bridge in the artifact
// holding more than limit entries.
func CheckCapacity(a *mapping.Artifact, limit int) []error {
	var errs []error
	for _, name := range a.Names() {
		if n := a.Count(name); n > limit {
			errs = append(errs, &CapacityError{Bridge: name, Count: n, Limit: limit})
		}
	}
	return errs
}
