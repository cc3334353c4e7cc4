// Package filter decides which Home Assistant entities may be exposed to a
// HomeKit bridge.
//
// A Policy is compiled once into a Filter. The Filter's predicates are pure:
// the same entity and device always produce the same Decision, and the order
// of excluded_patterns never affects the outcome.
//
// # Checks
//
// Evaluate applies the checks in a fixed order and reports the first reason
// that rejects the entity:
//
//   - disabled: the entity is disabled in Home Assistant
//   - domain: the entity's domain is not in include_domains
//   - ignored: the entity ID is listed in ignored_entities
//   - integration: the effective integration is in excluded_integrations
//   - pattern: an excluded pattern matches anywhere in the entity ID
//   - no_area: neither the entity nor its device has an area reference
//
// Integration and pattern exclusion are also exposed as separate predicates
// (IntegrationExcluded, PatternExcluded) so each can be tested on its own.
//
// # Usage
//
//	f, err := filter.Compile(filter.Policy{
//	    ExcludedIntegrations: []string{"alexa_media"},
//	    ExcludedPatterns:     []string{`_segment_\d{3}`},
//	})
//	if err != nil {
//	    return err // *filter.PatternError
//	}
//	if f.Include(entity, device) {
//	    // expose it
//	}
package filter
