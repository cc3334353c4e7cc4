package filter

import (
	"regexp"

	"github.com/nerrad567/homekit-bridge-manager/internal/registry"
)

// Reason names why an entity was rejected.
type Reason string

// Rejection reasons, in the order Evaluate checks them.
const (
	ReasonNone        Reason = ""
	ReasonDisabled    Reason = "disabled"
	ReasonDomain      Reason = "domain"
	ReasonIgnored     Reason = "ignored"
	ReasonIntegration Reason = "integration"
	ReasonPattern     Reason = "pattern"
	ReasonNoArea      Reason = "no_area"
)

// AllReasons returns every rejection reason in check order.
func AllReasons() []Reason {
	return []Reason{
		ReasonDisabled,
		ReasonDomain,
		ReasonIgnored,
		ReasonIntegration,
		ReasonPattern,
		ReasonNoArea,
	}
}

// Policy is the uncompiled exclusion policy as it appears in configuration.
type Policy struct {
	ExcludedIntegrations []string
	ExcludedPatterns     []string
	IgnoredEntities      []string

	// IncludeDomains limits inclusion to these entity domains. Empty allows all.
	IncludeDomains []string

	IncludeDisabled bool
}

// Decision is the outcome of evaluating one entity.
type Decision struct {
	Included bool

	// Reason is ReasonNone when Included is true.
	Reason Reason

	// Integration is the effective integration used for the check.
	Integration string
}

// Filter is a compiled Policy. It is immutable and safe for concurrent use.
type Filter struct {
	integrations map[string]struct{}
	ignored      map[string]struct{}
	domains      map[string]struct{}
	patterns     []*regexp.Regexp

	includeDisabled bool
}

// Compile validates the policy and prepares it for evaluation.
// An invalid regular expression returns a *PatternError.
func Compile(p Policy) (*Filter, error) {
	f := &Filter{
		integrations:    toSet(p.ExcludedIntegrations),
		ignored:         toSet(p.IgnoredEntities),
		domains:         toSet(p.IncludeDomains),
		patterns:        make([]*regexp.Regexp, 0, len(p.ExcludedPatterns)),
		includeDisabled: p.IncludeDisabled,
	}

	for i, expr := range p.ExcludedPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &PatternError{Pattern: expr, Index: i, Err: err}
		}
		f.patterns = append(f.patterns, re)
	}

	return f, nil
}

// MustCompile is like Compile but panics on error. For tests and fixed policies.
func MustCompile(p Policy) *Filter {
	f, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return f
}

// IntegrationExcluded reports whether the integration is on the denylist.
func (f *Filter) IntegrationExcluded(integration string) bool {
	_, ok := f.integrations[integration]
	return ok
}

// PatternExcluded reports whether any excluded pattern matches the entity ID.
// Patterns are unanchored.
func (f *Filter) PatternExcluded(entityID string) bool {
	for _, re := range f.patterns {
		if re.MatchString(entityID) {
			return true
		}
	}
	return false
}

// Evaluate checks an entity against the policy. The device may be nil when
// the entity has no owning device or it is missing from the registry.
func (f *Filter) Evaluate(e registry.Entity, d *registry.Device) Decision {
	integration := EffectiveIntegration(e, d)
	reject := func(r Reason) Decision {
		return Decision{Reason: r, Integration: integration}
	}

	if e.Disabled() && !f.includeDisabled {
		return reject(ReasonDisabled)
	}
	if len(f.domains) > 0 {
		if _, ok := f.domains[e.Domain()]; !ok {
			return reject(ReasonDomain)
		}
	}
	if _, ok := f.ignored[e.EntityID]; ok {
		return reject(ReasonIgnored)
	}
	if f.IntegrationExcluded(integration) {
		return reject(ReasonIntegration)
	}
	if f.PatternExcluded(e.EntityID) {
		return reject(ReasonPattern)
	}
	if registry.AreaRef(e, d) == "" {
		return reject(ReasonNoArea)
	}

	return Decision{Included: true, Integration: integration}
}

// Include is shorthand for Evaluate(e, d).Included.
func (f *Filter) Include(e registry.Entity, d *registry.Device) bool {
	return f.Evaluate(e, d).Included
}

// EffectiveIntegration returns the entity's own platform, falling back to the
// owning device's integration.
func EffectiveIntegration(e registry.Entity, d *registry.Device) string {
	if e.Platform != "" {
		return e.Platform
	}
	if d != nil {
		return d.Integration
	}
	return ""
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
