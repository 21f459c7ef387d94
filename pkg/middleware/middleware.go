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

// Package middleware composes query and raw message processing stacks.
// Stacks are composed once at server start, a middleware registered first
// is the outermost.
package middleware

import (
	"context"
	"net/netip"

	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
)

// Next invokes the rest of the query stack.
type Next func(ctx context.Context, q *query.Query) (*query.Response, error)

// Middleware processes a query. It may answer directly, transform the
// query or the response, or delegate to next.
type Middleware func(ctx context.Context, q *query.Query, next Next) (*query.Response, error)

// Compose wires mws around sink. mws[0] becomes the outermost layer.
func Compose(mws []Middleware, sink Next) Next {
	next := sink
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := next
		next = func(ctx context.Context, q *query.Query) (*query.Response, error) {
			return mw(ctx, q, inner)
		}
	}
	return next
}

// QueryMeta carries transport information about an inbound message.
type QueryMeta struct {
	// ClientAddr is the client address. It may be invalid.
	ClientAddr netip.Addr
	// FromUDP reports whether the message arrived over UDP.
	FromUDP bool
}

// RawNext invokes the rest of the raw stack. A nil reply with a nil error
// drops the message without answering.
type RawNext func(ctx context.Context, m *dns.Msg, meta QueryMeta) (*dns.Msg, error)

// RawMiddleware processes a wire level message before it is decoded into
// a query.
type RawMiddleware func(ctx context.Context, m *dns.Msg, meta QueryMeta, next RawNext) (*dns.Msg, error)

// ComposeRaw wires mws around sink. mws[0] becomes the outermost layer.
func ComposeRaw(mws []RawMiddleware, sink RawNext) RawNext {
	next := sink
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := next
		next = func(ctx context.Context, m *dns.Msg, meta QueryMeta) (*dns.Msg, error) {
			return mw(ctx, m, meta, inner)
		}
	}
	return next
}
