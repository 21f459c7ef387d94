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
	"fmt"

	"github.com/miekg/dns"
)

// dns.Msg.PackBuffer wants a buffer of the uncompressed length + 1, even
// when m is packed with compression (e.g. after dns.Msg.Truncate).
func packBufferSize(m *dns.Msg) int {
	compress := m.Compress
	m.Compress = false
	l := m.Len()
	m.Compress = compress
	return l + 1
}

// PackBuffer packs m into a pooled buffer. The caller releases the buffer
// with ReleaseBuf.
func PackBuffer(m *dns.Msg) ([]byte, error) {
	b := GetBuf(packBufferSize(m))
	wire, err := m.PackBuffer(b)
	if err != nil {
		ReleaseBuf(b)
		return nil, err
	}
	if &b[0] != &wire[0] { // reallocated
		ReleaseBuf(b)
		return nil, dns.ErrBuf
	}
	return b[:len(wire)], nil
}

// PackTCPBuffer packs m into a pooled buffer with the two byte length
// header in front. The caller releases the buffer with ReleaseBuf.
func PackTCPBuffer(m *dns.Msg) ([]byte, error) {
	b := GetBuf(2 + packBufferSize(m))
	wire, err := m.PackBuffer(b[2:])
	if err != nil {
		ReleaseBuf(b)
		return nil, err
	}
	if &b[2] != &wire[0] { // reallocated
		ReleaseBuf(b)
		return nil, dns.ErrBuf
	}
	l := len(wire)
	if l > dns.MaxMsgSize {
		ReleaseBuf(b)
		return nil, fmt.Errorf("dns payload size %d is too large", l)
	}
	binary.BigEndian.PutUint16(b[:2], uint16(l))
	return b[:2+l], nil
}
