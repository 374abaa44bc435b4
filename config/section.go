package config

import (
	"fmt"
	"sort"
	"strings"

	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// Section is the part of the field key before the first dot, e.g. "player" for "player.retry_delay".
func (f *Field) Section() string {
	section, _, _ := strings.Cut(f.Key, ".")
	return section
}

// Group is every field of one section, sorted by key.
type Group struct {
	Section string  `json:"section"`
	Fields  []Field `json:"fields"`
}

// Sections returns the names of all sections, sorted.
func Sections() []string {
	sections := lo.Uniq(lo.MapToSlice(Default, func(_ string, f Field) string { return f.Section() }))
	slices.Sort(sections)
	return sections
}

// Grouped splits fields by section. Sections and the fields inside them are sorted.
func Grouped(fields []Field) []Group {
	bySection := lo.GroupBy(fields, func(f Field) string { return f.Section() })

	groups := make([]Group, 0, len(bySection))
	for section, fields := range bySection {
		sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
		groups = append(groups, Group{Section: section, Fields: fields})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Section < groups[j].Section })
	return groups
}

// Resolve turns keys and section names into fields. No names means every field.
func Resolve(names ...string) ([]Field, error) {
	if len(names) == 0 {
		return lo.Values(Default), nil
	}

	var fields []Field
	for _, name := range names {
		if field, ok := Default[name]; ok {
			fields = append(fields, field)
			continue
		}

		inSection := lo.Filter(lo.Values(Default), func(f Field, _ int) bool { return f.Section() == name })
		if len(inSection) == 0 {
			return nil, &UnknownKeyError{Key: name, Suggestion: Suggest(name)}
		}
		fields = append(fields, inSection...)
	}

	return lo.UniqBy(fields, func(f Field) string { return f.Key }), nil
}

// UnknownKeyError names a key or section that is not registered and the closest one that is.
type UnknownKeyError struct {
	Key        string
	Suggestion string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown key %s, did you mean %s?", e.Key, e.Suggestion)
}

// Suggest returns the registered key or section closest to name.
func Suggest(name string) string {
	candidates := append(lo.Keys(Default), Sections()...)
	return lo.MinBy(candidates, func(a, b string) bool {
		return levenshtein.Distance(name, a) < levenshtein.Distance(name, b)
	})
}
