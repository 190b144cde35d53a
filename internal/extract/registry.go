// Package extract implements the polymorphic product extraction strategies.
package extract

import (
	"github.com/parselab/shop-parser/internal/parser"
)

// Registry resolves a task's parser type to a concrete strategy. Site
// profiles are registered at construction; resolution happens at task
// start, never via reflection.
type Registry struct {
	universal *Universal
	profiles  map[string]parser.SiteProfile
}

// NewRegistry builds a Registry over the configured site profiles.
func NewRegistry(fallbackCurrency string, profiles []parser.SiteProfile) *Registry {
	byDomain := make(map[string]parser.SiteProfile, len(profiles))
	for _, p := range profiles {
		byDomain[p.Domain] = p
	}
	return &Registry{
		universal: NewUniversal(fallbackCurrency),
		profiles:  byDomain,
	}
}

// Resolve returns the strategy for a parser type and, for site-specific
// types, the owning profile. Unknown profile ids are a validation error.
func (r *Registry) Resolve(parserType parser.ParserType) (parser.Strategy, *parser.SiteProfile, error) {
	if parserType == "" || parserType == parser.ParserTypeUniversal {
		return r.universal, nil, nil
	}
	profile, ok := r.profiles[string(parserType)]
	if !ok {
		return nil, nil, &parser.ValidationError{Field: "parser_type", Reason: "unknown site profile: " + string(parserType)}
	}
	return NewSiteSpecific(profile, r.universal), &profile, nil
}

// Known reports whether a parser type can be resolved, used for synchronous
// submission validation.
func (r *Registry) Known(parserType parser.ParserType) bool {
	_, _, err := r.Resolve(parserType)
	return err == nil
}
