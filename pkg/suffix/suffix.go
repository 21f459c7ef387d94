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

// Package suffix resolves the registrable domain (eTLD+1) of a name.
package suffix

import (
	"fmt"

	"github.com/IrineSistiana/nsrouter/pkg/nsname"
	"golang.org/x/net/publicsuffix"
)

// Resolver resolves the registrable domain of a canonical name.
type Resolver interface {
	// BaseDomain returns the registrable domain of name in canonical
	// form. It returns an error if name has no registrable domain,
	// e.g. name is itself a public suffix.
	BaseDomain(name string) (string, error)
}

// PublicSuffixResolver resolves against the embedded public suffix list.
// Unlisted TLDs follow the list's default rule, the suffix is the last
// label.
type PublicSuffixResolver struct{}

func (PublicSuffixResolver) BaseDomain(name string) (string, error) {
	name = nsname.Normalize(name)
	d, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return "", fmt.Errorf("no registrable domain for %s: %w", name, err)
	}
	return d, nil
}

// StaticResolver resolves from a fixed map of name to base domain.
// Lookup walks the name's parent chain so entries may be zones.
type StaticResolver struct {
	m map[string]string
}

// NewStaticResolver builds a StaticResolver. Keys and values are
// normalized.
func NewStaticResolver(m map[string]string) *StaticResolver {
	r := &StaticResolver{m: make(map[string]string, len(m))}
	for k, v := range m {
		r.m[nsname.Normalize(k)] = nsname.Normalize(v)
	}
	return r
}

func (r *StaticResolver) BaseDomain(name string) (string, error) {
	name = nsname.Normalize(name)
	for n := name; len(n) > 0; n = parent(n) {
		if d, ok := r.m[n]; ok {
			return d, nil
		}
	}
	return "", fmt.Errorf("no registrable domain for %s", name)
}

func parent(n string) string {
	for i := 0; i < len(n); i++ {
		if n[i] == '.' {
			return n[i+1:]
		}
	}
	return ""
}
