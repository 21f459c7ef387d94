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
	"strings"

	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/nsname"
	"github.com/IrineSistiana/nsrouter/pkg/suffix"
)

const baseDomainToken = "{base_domain}"

type tokenKind uint8

const (
	tokenLiteral tokenKind = iota
	tokenStar              // exactly one label
	tokenDoubleStar        // one or more labels
	tokenBaseDomain        // the labels of the registrable domain
)

type wildcardToken struct {
	kind    tokenKind
	literal string
}

// WildcardMatcher matches names against a label pattern.
//
//	*              matches exactly one label
//	**             matches one or more labels
//	{base_domain}  matches the labels of the query name's registrable
//	               domain, it may appear at most once
//
// Any other label is matched literally. The pattern must consume the
// whole name. If the registrable domain cannot be resolved the pattern
// does not match.
type WildcardMatcher struct {
	pattern       string
	tokens        []wildcardToken
	caseSensitive bool
	resolver      suffix.Resolver
}

func NewWildcardMatcher(pattern string, caseSensitive bool, resolver suffix.Resolver) (*WildcardMatcher, error) {
	p := strings.TrimSuffix(pattern, ".")
	if !caseSensitive {
		p = strings.ToLower(p)
	}
	if len(p) == 0 {
		return nil, nserrors.Errorf(nserrors.Configuration, "empty wildcard pattern")
	}
	if resolver == nil {
		resolver = suffix.PublicSuffixResolver{}
	}

	var tokens []wildcardToken
	sawBaseDomain := false
	for _, label := range strings.Split(p, ".") {
		switch label {
		case "":
			return nil, nserrors.Errorf(nserrors.Configuration, "empty label in pattern %q", pattern)
		case "*":
			tokens = append(tokens, wildcardToken{kind: tokenStar})
		case "**":
			if len(tokens) > 0 && tokens[len(tokens)-1].kind == tokenDoubleStar {
				return nil, nserrors.Errorf(nserrors.Configuration, "adjacent ** in pattern %q", pattern)
			}
			tokens = append(tokens, wildcardToken{kind: tokenDoubleStar})
		case baseDomainToken:
			if sawBaseDomain {
				return nil, nserrors.Errorf(nserrors.Configuration, "multiple {base_domain} in pattern %q", pattern)
			}
			sawBaseDomain = true
			tokens = append(tokens, wildcardToken{kind: tokenBaseDomain})
		default:
			tokens = append(tokens, wildcardToken{kind: tokenLiteral, literal: label})
		}
	}
	return &WildcardMatcher{
		pattern:       pattern,
		tokens:        tokens,
		caseSensitive: caseSensitive,
		resolver:      resolver,
	}, nil
}

func (m *WildcardMatcher) Pattern() string { return m.pattern }

func (m *WildcardMatcher) MatchName(name string) bool {
	if !m.caseSensitive {
		name = strings.ToLower(name)
	}
	labels := nsname.Labels(name)
	if len(labels) == 0 {
		return false
	}

	// The registrable domain is resolved at most once per match.
	s := &wildcardState{name: name, resolver: m.resolver}
	return m.match(m.tokens, labels, s)
}

type wildcardState struct {
	name     string
	resolver suffix.Resolver

	resolved   bool
	baseLabels []string // nil when resolution failed
}

func (s *wildcardState) base() []string {
	if !s.resolved {
		s.resolved = true
		d, err := s.resolver.BaseDomain(s.name)
		if err == nil {
			s.baseLabels = nsname.Labels(d)
		}
	}
	return s.baseLabels
}

func (m *WildcardMatcher) match(tokens []wildcardToken, labels []string, s *wildcardState) bool {
	if len(tokens) == 0 {
		return len(labels) == 0
	}
	t := tokens[0]
	switch t.kind {
	case tokenLiteral:
		if len(labels) == 0 || labels[0] != t.literal {
			return false
		}
		return m.match(tokens[1:], labels[1:], s)
	case tokenStar:
		if len(labels) == 0 {
			return false
		}
		return m.match(tokens[1:], labels[1:], s)
	case tokenDoubleStar:
		// Greedy, consume as many labels as possible and backtrack.
		for n := len(labels); n >= 1; n-- {
			if m.match(tokens[1:], labels[n:], s) {
				return true
			}
		}
		return false
	case tokenBaseDomain:
		base := s.base()
		if base == nil || len(labels) < len(base) {
			return false
		}
		// Registrable domains are case insensitive regardless of the
		// rule's own case mode.
		for i := range base {
			if !strings.EqualFold(labels[i], base[i]) {
				return false
			}
		}
		return m.match(tokens[1:], labels[len(base):], s)
	default:
		return false
	}
}
