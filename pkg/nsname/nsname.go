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

// Package nsname has helpers for handling domain names in their canonical
// form: lower case, no trailing dot, labels separated by ".". The root name
// is the empty string.
package nsname

import (
	"fmt"
	"strings"
)

const (
	maxLabelLength = 63
	// Total wire length limit. The wire form of a name is two octets
	// longer than its canonical presentation form (one length octet per
	// label and a terminating zero octet, against one dot between
	// labels), so we validate against the wire form.
	maxNameWireLength = 255
)

// Normalize returns the canonical form of s. It strips at most one trailing
// dot and lowers the case. Normalize does not validate s.
func Normalize(s string) string {
	s = strings.TrimSuffix(s, ".")
	return strings.ToLower(s)
}

// Validate checks that s is a valid domain name in canonical form.
// Each label must be 1~63 octets and the name must fit in 255 octets on
// the wire. The root name "" is valid. Validate does not enforce LDH.
func Validate(s string) error {
	if len(s) == 0 {
		return nil
	}
	// Wire length is len(s)+2 for non-root names: one length octet per
	// label (== number of dots + 1) plus the terminating zero octet.
	if len(s)+2 > maxNameWireLength {
		return fmt.Errorf("name length %d exceeds %d octets", len(s)+2, maxNameWireLength)
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			l := i - start
			if l == 0 {
				return fmt.Errorf("empty label at offset %d", start)
			}
			if l > maxLabelLength {
				return fmt.Errorf("label length %d exceeds %d octets", l, maxLabelLength)
			}
			start = i + 1
		}
	}
	return nil
}

// Labels splits a canonical name into its labels. The root name has no
// labels.
func Labels(s string) []string {
	if len(s) == 0 {
		return nil
	}
	return strings.Split(s, ".")
}

// Equal reports whether two canonical names are the same name.
// If caseSensitive is false both names are lowered before comparison.
func Equal(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

// IsSubdomain reports whether name is zone itself or a subdomain of zone,
// on label boundaries. The root zone "" contains every name.
func IsSubdomain(zone, name string) bool {
	if len(zone) == 0 {
		return true
	}
	if len(name) < len(zone) {
		return false
	}
	if !strings.EqualFold(name[len(name)-len(zone):], zone) {
		return false
	}
	return len(name) == len(zone) || name[len(name)-len(zone)-1] == '.'
}
