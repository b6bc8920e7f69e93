package geo

import (
	"sort"
	"strings"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/lexicon"
)

// Locality is a place name that belongs to a region.
type Locality struct {
	Name   string
	Region string
}

// Resolver maps free text to the most specific known geographic unit.
type Resolver struct {
	regions    *lexicon.Set
	localities *lexicon.Set
	aliases    *lexicon.Set
	parent     map[string]string
	aliasOf    map[string]string
}

// NewResolver builds a resolver. Localities whose region is unknown are ignored;
// aliases map an alternate spelling onto a region or locality name.
func NewResolver(regions []string, localities []Locality, aliases map[string]string) *Resolver {
	known := map[string]string{}
	for _, r := range regions {
		known[strings.ToLower(strings.TrimSpace(r))] = strings.TrimSpace(r)
	}

	parent := map[string]string{}
	var locNames []string
	for _, l := range localities {
		region, ok := known[strings.ToLower(strings.TrimSpace(l.Region))]
		if !ok || strings.TrimSpace(l.Name) == "" {
			continue
		}
		parent[strings.ToLower(l.Name)] = region
		locNames = append(locNames, l.Name)
	}

	aliasOf := map[string]string{}
	var aliasNames []string
	for alias, target := range aliases {
		aliasOf[strings.ToLower(alias)] = target
		aliasNames = append(aliasNames, alias)
	}

	return &Resolver{
		regions:    lexicon.NewSet(regions),
		localities: lexicon.NewSet(locNames),
		aliases:    lexicon.NewSet(sortedCopy(aliasNames)), // map order is random
		parent:     parent,
		aliasOf:    aliasOf,
	}
}

// Resolve returns the first geographic unit mentioned in text. Localities are
// tried before regions so "Half Way Tree" resolves to St. Andrew with the
// locality kept. No match is a valid outcome.
func (r *Resolver) Resolve(text string) (domain.GeoUnit, bool) {
	if r == nil || strings.TrimSpace(text) == "" {
		return domain.GeoUnit{}, false
	}

	if name, ok := r.localities.First(text); ok {
		return domain.GeoUnit{Name: r.parent[strings.ToLower(name)], Locality: name}, true
	}
	if name, ok := r.regions.First(text); ok {
		return domain.GeoUnit{Name: name}, true
	}
	if alias, ok := r.aliases.First(text); ok {
		return r.resolveName(r.aliasOf[strings.ToLower(alias)])
	}
	return domain.GeoUnit{}, false
}

func (r *Resolver) resolveName(name string) (domain.GeoUnit, bool) {
	if region, ok := r.parent[strings.ToLower(name)]; ok {
		return domain.GeoUnit{Name: region, Locality: name}, true
	}
	for _, region := range r.regions.Terms() {
		if strings.EqualFold(region, name) {
			return domain.GeoUnit{Name: region}, true
		}
	}
	return domain.GeoUnit{}, false
}

// Regions lists the configured region names in order.
func (r *Resolver) Regions() []string {
	return r.regions.Terms()
}

// PlaceNames lists regions then localities, the full geographic vocabulary.
func (r *Resolver) PlaceNames() []string {
	return append(r.regions.Terms(), r.localities.Terms()...)
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
