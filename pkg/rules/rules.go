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

// Package rules matches queries against name patterns and query type sets
// and binds them to handlers.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/IrineSistiana/nsrouter/pkg/suffix"
	"github.com/miekg/dns"
)

// NameMatcher matches a question name. The name has no trailing dot and
// keeps the case it arrived with.
type NameMatcher interface {
	MatchName(name string) bool
}

// TypeSet is a set of query types. A set built with AnyType, or containing
// dns.TypeANY, matches every type.
type TypeSet struct {
	any bool
	m   map[uint16]struct{}
}

// AnyType returns a TypeSet matching all query types.
func AnyType() TypeSet {
	return TypeSet{any: true}
}

// Types returns a TypeSet of the given query types.
func Types(ts ...uint16) TypeSet {
	s := TypeSet{m: make(map[uint16]struct{}, len(ts))}
	for _, t := range ts {
		if t == dns.TypeANY {
			s.any = true
		}
		s.m[t] = struct{}{}
	}
	return s
}

// Match reports whether t is in the set.
func (s TypeSet) Match(t uint16) bool {
	if s.any {
		return true
	}
	_, ok := s.m[t]
	return ok
}

// Empty reports whether the set matches nothing.
func (s TypeSet) Empty() bool {
	return !s.any && len(s.m) == 0
}

// Rule binds a name matcher and a type set to a handler. A query matches
// the rule only if both the name and the type match.
type Rule struct {
	matcher NameMatcher
	types   TypeSet
	handler query.Handler
}

// NewRule builds a rule from its parts.
func NewRule(m NameMatcher, types TypeSet, h query.Handler) (*Rule, error) {
	if m == nil {
		return nil, nserrors.Errorf(nserrors.Configuration, "nil name matcher")
	}
	if types.Empty() {
		return nil, nserrors.Errorf(nserrors.Configuration, "empty query type set")
	}
	if h == nil {
		return nil, nserrors.Errorf(nserrors.Configuration, "nil handler")
	}
	return &Rule{matcher: m, types: types, handler: h}, nil
}

func (r *Rule) Match(q *query.Query) bool {
	return r.types.Match(q.Type) && r.matcher.MatchName(q.Name)
}

func (r *Rule) Handler() query.Handler { return r.handler }

type options struct {
	caseSensitive bool
	resolver      suffix.Resolver
}

// Option configures rule construction.
type Option func(*options)

// CaseSensitive makes name matching case sensitive. The default folds
// case.
func CaseSensitive() Option {
	return func(o *options) { o.caseSensitive = true }
}

// WithResolver sets the registrable domain resolver used by wildcard
// patterns containing {base_domain}. The default is the public suffix
// list.
func WithResolver(r suffix.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

func buildOptions(opts []Option) options {
	o := options{resolver: suffix.PublicSuffixResolver{}}
	for _, f := range opts {
		f(&o)
	}
	return o
}

// New builds a rule, picking the matcher from the pattern:
// a *regexp.Regexp becomes a regex rule, a string containing "*" or
// "{base_domain}" becomes a wildcard rule, any other string becomes a
// static rule. Zone rules are built explicitly with NewZone.
func New(pattern any, types TypeSet, h query.Handler, opts ...Option) (*Rule, error) {
	switch p := pattern.(type) {
	case *regexp.Regexp:
		return NewRegex(p, types, h, opts...)
	case string:
		if strings.ContainsRune(p, '*') || strings.Contains(p, baseDomainToken) {
			return NewWildcard(p, types, h, opts...)
		}
		return NewStatic(p, types, h, opts...)
	default:
		return nil, nserrors.Errorf(nserrors.Configuration, "unsupported pattern type %T", pattern)
	}
}

// MustNew is New, panicking on error. For use in static registration
// tables.
func MustNew(pattern any, types TypeSet, h query.Handler, opts ...Option) *Rule {
	r, err := New(pattern, types, h, opts...)
	if err != nil {
		panic(fmt.Sprintf("rules: %v", err))
	}
	return r
}
