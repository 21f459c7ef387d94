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

// Package codec is a thin layer over the DNS wire format.
package codec

import (
	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
)

// Parse unpacks a wire format message. Failures are Decode class errors.
func Parse(b []byte) (*dns.Msg, error) {
	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return nil, nserrors.Errorf(nserrors.Decode, "invalid wire message, %w", err)
	}
	return m, nil
}

// Pack packs m into wire format.
func Pack(m *dns.Msg) ([]byte, error) {
	return m.Pack()
}

// Reply builds an empty authoritative NOERROR reply to req.
func Reply(req *dns.Msg) *dns.Msg {
	r := new(dns.Msg)
	r.SetReply(req)
	r.Authoritative = true
	return r
}

// ErrorReply builds an authoritative reply to req with the given rcode.
func ErrorReply(req *dns.Msg, rcode int) *dns.Msg {
	r := Reply(req)
	r.Rcode = rcode
	return r
}

// MergeResponse builds the reply message for req from resp. A nil resp
// means NOERROR with empty sections.
func MergeResponse(req *dns.Msg, resp *query.Response) *dns.Msg {
	r := Reply(req)
	if resp == nil {
		return r
	}
	r.Rcode = resp.Rcode
	r.Answer = resp.Answer
	r.Ns = resp.Ns
	r.Extra = resp.Extra
	return r
}

// UDPSize returns the reply size limit advertised by req, clamped to
// [dns.MinMsgSize, max]. A zero max means dns.MaxMsgSize.
func UDPSize(req *dns.Msg, max int) int {
	size := dns.MinMsgSize
	if opt := req.IsEdns0(); opt != nil {
		size = int(opt.UDPSize())
	}
	if size < dns.MinMsgSize {
		size = dns.MinMsgSize
	}
	if max <= 0 {
		max = dns.MaxMsgSize
	}
	if size > max {
		size = max
	}
	return size
}
