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

package pool

import (
	"encoding/binary"
	"testing"

	"github.com/miekg/dns"
)

func TestPackBuffer(t *testing.T) {
	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeAAAA)

	b, err := PackBuffer(m)
	if err != nil {
		t.Fatal(err)
	}
	defer ReleaseBuf(b)

	got := new(dns.Msg)
	if err := got.Unpack(b); err != nil {
		t.Fatal(err)
	}
}

func TestPackTCPBuffer(t *testing.T) {
	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeAAAA)

	b, err := PackTCPBuffer(m)
	if err != nil {
		t.Fatal(err)
	}
	defer ReleaseBuf(b)

	l := binary.BigEndian.Uint16(b[:2])
	if int(l) != len(b)-2 {
		t.Fatalf("length header %d, payload %d", l, len(b)-2)
	}
	got := new(dns.Msg)
	if err := got.Unpack(b[2:]); err != nil {
		t.Fatal(err)
	}
}
