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

// Package query defines the simplified query and response model that rule
// handlers operate on.
package query

import (
	"context"
	"net/netip"

	"github.com/miekg/dns"
)

// Query is a single-question DNS query in canonical form.
type Query struct {
	// Name is the question name without the trailing dot. Case is
	// preserved, matchers fold it as configured.
	Name string
	// Type is the question type, e.g. dns.TypeA.
	Type uint16

	// ClientAddr is the address the query arrived from. It may be
	// invalid when the query did not come over a network transport.
	ClientAddr netip.Addr
	// FromUDP reports whether the query arrived over UDP.
	FromUDP bool
}

// Response is what a handler answers with. The zero value is a NOERROR
// response with empty sections.
type Response struct {
	Rcode  int
	Answer []dns.RR
	Ns     []dns.RR
	Extra  []dns.RR
}

// Answers builds a NOERROR response with the given answer records.
func Answers(rr ...dns.RR) *Response {
	return &Response{Answer: rr}
}

// NXDomain builds an NXDOMAIN response.
func NXDomain() *Response {
	return &Response{Rcode: dns.RcodeNameError}
}

// Refused builds a REFUSED response.
func Refused() *Response {
	return &Response{Rcode: dns.RcodeRefused}
}

// ServFail builds a SERVFAIL response.
func ServFail() *Response {
	return &Response{Rcode: dns.RcodeServerFailure}
}

// Handler answers queries. A nil *Response with a nil error means NOERROR
// with empty sections.
type Handler interface {
	ServeQuery(ctx context.Context, q *Query) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, q *Query) (*Response, error)

func (f HandlerFunc) ServeQuery(ctx context.Context, q *Query) (*Response, error) {
	return f(ctx, q)
}
