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

// Package dnsio reads and writes DNS messages over stream and packet
// connections using pooled buffers.
package dnsio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/IrineSistiana/nsrouter/pkg/pool"
	"github.com/miekg/dns"
)

// HeaderLen is the minimum size of a valid DNS message.
const HeaderLen = 12

var ErrPayloadTooSmall = errors.New("payload is too small for a valid dns msg")

// ReadRawMsgTCP reads one message from c in RFC 1035 stream format, a two
// byte big endian length followed by the payload. The returned buffer must
// be released with pool.ReleaseBuf.
func ReadRawMsgTCP(c io.Reader) ([]byte, error) {
	h := pool.GetBuf(2)
	defer pool.ReleaseBuf(h)
	if _, err := io.ReadFull(c, h); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(h)
	if length < HeaderLen {
		return nil, ErrPayloadTooSmall
	}

	b := pool.GetBuf(int(length))
	if _, err := io.ReadFull(c, b); err != nil {
		pool.ReleaseBuf(b)
		return nil, err
	}
	return b, nil
}

// ReadMsgTCP reads and unpacks one message from c in RFC 1035 stream
// format. n is the number of bytes read.
func ReadMsgTCP(c io.Reader) (*dns.Msg, int, error) {
	b, err := ReadRawMsgTCP(c)
	if err != nil {
		return nil, 0, err
	}
	defer pool.ReleaseBuf(b)

	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return nil, len(b) + 2, fmt.Errorf("failed to unpack msg, %w", err)
	}
	return m, len(b) + 2, nil
}

// WriteMsgTCP packs and writes m to c in RFC 1035 stream format. The
// length header and the payload go out in a single write.
func WriteMsgTCP(c io.Writer, m *dns.Msg) (int, error) {
	b, err := pool.PackTCPBuffer(m)
	if err != nil {
		return 0, err
	}
	defer pool.ReleaseBuf(b)
	return c.Write(b)
}

// WriteRawMsgTCP writes the wire payload b to c in RFC 1035 stream
// format.
func WriteRawMsgTCP(c io.Writer, b []byte) (int, error) {
	if len(b) > dns.MaxMsgSize {
		return 0, fmt.Errorf("payload length %d is greater than dns max msg size", len(b))
	}

	buf := pool.GetBuf(len(b) + 2)
	defer pool.ReleaseBuf(buf)

	binary.BigEndian.PutUint16(buf[:2], uint16(len(b)))
	copy(buf[2:], b)
	return c.Write(buf)
}

// WriteMsgUDP packs and writes m to c as a single datagram.
func WriteMsgUDP(c io.Writer, m *dns.Msg) (int, error) {
	b, err := pool.PackBuffer(m)
	if err != nil {
		return 0, err
	}
	defer pool.ReleaseBuf(b)
	return c.Write(b)
}
