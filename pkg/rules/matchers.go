/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of nsrouter.
 *
 * nsrouter is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * nsrouter is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package rules

import (
	"regexp"
	"strings"

	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/nsname"
	"github.com/IrineSistiana/nsrouter/pkg/query"
)

// StaticMatcher matches a name by equality.
type StaticMatcher struct {
	name          string
	caseSensitive bool
}

func NewStaticMatcher(name string, caseSensitive bool) (*StaticMatcher, error) {
	name = strings.TrimSuffix(name, ".")
	if err := nsname.Validate(name); err != nil {
		return nil, nserrors.Errorf(nserrors.Configuration, "invalid name %q, %w", name, err)
	}
	if !caseSensitive {
		name = strings.ToLower(name)
	}
	return &StaticMatcher{name: name, caseSensitive: caseSensitive}, nil
}

func (m *StaticMatcher) MatchName(name string) bool {
	return nsname.Equal(m.name, name, m.caseSensitive)
}

// ZoneMatcher matches a zone and everything under it, on label
// boundaries.
type ZoneMatcher struct {
	zone          string
	caseSensitive bool
}

func NewZoneMatcher(zone string, caseSensitive bool) (*ZoneMatcher, error) {
	zone = strings.TrimSuffix(zone, ".")
	if err := nsname.Validate(zone); err != nil {
		return nil, nserrors.Errorf(nserrors.Configuration, "invalid zone %q, %w", zone, err)
	}
	if !caseSensitive {
		zone = strings.ToLower(zone)
	}
	return &ZoneMatcher{zone: zone, caseSensitive: caseSensitive}, nil
}

func (m *ZoneMatcher) MatchName(name string) bool {
	if !m.caseSensitive {
		return nsname.IsSubdomain(m.zone, name)
	}
	if name == m.zone {
		return true
	}
	return strings.HasSuffix(name, "."+m.zone)
}

// RegexMatcher matches the whole name against a regular expression.
type RegexMatcher struct {
	re            *regexp.Regexp
	caseSensitive bool
}

// NewRegexMatcher anchors expr so it must consume the whole name. With
// case folding the name is lowered before matching, write the expression
// in lower case.
func NewRegexMatcher(expr string, caseSensitive bool) (*RegexMatcher, error) {
	re, err := regexp.Compile(`\A(?:` + expr + `)\z`)
	if err != nil {
		return nil, nserrors.Errorf(nserrors.Configuration, "invalid regex %q, %w", expr, err)
	}
	return &RegexMatcher{re: re, caseSensitive: caseSensitive}, nil
}

func (m *RegexMatcher) MatchName(name string) bool {
	if !m.caseSensitive {
		name = strings.ToLower(name)
	}
	return m.re.MatchString(name)
}

// NewStatic builds a static rule.
func NewStatic(name string, types TypeSet, h query.Handler, opts ...Option) (*Rule, error) {
	o := buildOptions(opts)
	m, err := NewStaticMatcher(name, o.caseSensitive)
	if err != nil {
		return nil, err
	}
	return NewRule(m, types, h)
}

// NewZone builds a zone rule.
func NewZone(zone string, types TypeSet, h query.Handler, opts ...Option) (*Rule, error) {
	o := buildOptions(opts)
	m, err := NewZoneMatcher(zone, o.caseSensitive)
	if err != nil {
		return nil, err
	}
	return NewRule(m, types, h)
}

// NewRegex builds a regex rule from a compiled expression.
func NewRegex(re *regexp.Regexp, types TypeSet, h query.Handler, opts ...Option) (*Rule, error) {
	o := buildOptions(opts)
	m, err := NewRegexMatcher(re.String(), o.caseSensitive)
	if err != nil {
		return nil, err
	}
	return NewRule(m, types, h)
}

// NewRegexString builds a regex rule from an expression string.
func NewRegexString(expr string, types TypeSet, h query.Handler, opts ...Option) (*Rule, error) {
	o := buildOptions(opts)
	m, err := NewRegexMatcher(expr, o.caseSensitive)
	if err != nil {
		return nil, err
	}
	return NewRule(m, types, h)
}

// NewWildcard builds a wildcard rule.
func NewWildcard(pattern string, types TypeSet, h query.Handler, opts ...Option) (*Rule, error) {
	o := buildOptions(opts)
	m, err := NewWildcardMatcher(pattern, o.caseSensitive, o.resolver)
	if err != nil {
		return nil, err
	}
	return NewRule(m, types, h)
}
