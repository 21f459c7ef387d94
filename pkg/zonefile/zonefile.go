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

// Package zonefile serves record sets loaded from zone file data.
package zonefile

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
)

const defaultTTL = 3600

type recordKey struct {
	name  string
	qtype uint16
}

// Zone is an in memory record store keyed by owner name and type. Names
// are matched case insensitively.
type Zone struct {
	names map[string]struct{}
	m     map[recordKey][]dns.RR
}

// Load parses zone file data from r.
func Load(r io.Reader) (*Zone, error) {
	z := &Zone{
		names: make(map[string]struct{}),
		m:     make(map[recordKey][]dns.RR),
	}

	parser := dns.NewZoneParser(r, "", "")
	parser.SetDefaultTTL(defaultTTL)
	for rr, ok := parser.Next(); ok; rr, ok = parser.Next() {
		h := rr.Header()
		name := normalize(h.Name)
		z.names[name] = struct{}{}
		k := recordKey{name: name, qtype: h.Rrtype}
		z.m[k] = append(z.m[k], rr)
	}
	if err := parser.Err(); err != nil {
		return nil, err
	}
	return z, nil
}

// LoadFile parses the zone file at path.
func LoadFile(path string) (*Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// Lookup returns the records of the given type owned by name, or nil.
func (z *Zone) Lookup(name string, qtype uint16) []dns.RR {
	return z.m[recordKey{name: normalize(name), qtype: qtype}]
}

// Contains reports whether name owns any record.
func (z *Zone) Contains(name string) bool {
	_, ok := z.names[normalize(name)]
	return ok
}

// Len returns the number of record sets in the zone.
func (z *Zone) Len() int {
	return len(z.m)
}

// Handler serves the zone content. Known names with no record of the
// queried type get an empty NOERROR, unknown names get NXDOMAIN.
func (z *Zone) Handler() query.Handler {
	return query.HandlerFunc(func(_ context.Context, q *query.Query) (*query.Response, error) {
		if rrs := z.Lookup(q.Name, q.Type); len(rrs) > 0 {
			return query.Answers(rrs...), nil
		}
		if z.Contains(q.Name) {
			return nil, nil
		}
		return query.NXDomain(), nil
	})
}
