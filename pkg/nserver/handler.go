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

package nserver

import (
	"context"
	"strings"

	"github.com/IrineSistiana/nsrouter/pkg/codec"
	"github.com/IrineSistiana/nsrouter/pkg/middleware"
	"github.com/IrineSistiana/nsrouter/pkg/nsname"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
)

// Freeze composes the middleware stacks and freezes the rule registries.
// It is called by Run and is safe to call more than once.
func (s *Server) Freeze() {
	s.frozenMu.Lock()
	defer s.frozenMu.Unlock()
	if s.frozen {
		return
	}
	s.frozen = true

	s.root.Freeze()

	queryMws := make([]middleware.Middleware, 0, len(s.queryMws)+2)
	queryMws = append(queryMws, s.em.Wrap())
	queryMws = append(queryMws, s.queryMws...)
	if !s.hooks.Empty() {
		queryMws = append(queryMws, s.hooks.Wrap())
	}
	queryChain := middleware.Compose(queryMws, s.dispatch)

	rawMws := make([]middleware.RawMiddleware, 0, len(s.rawMws)+1)
	rawMws = append(rawMws, s.rem.Wrap())
	rawMws = append(rawMws, s.rawMws...)
	s.rawChain = middleware.ComposeRaw(rawMws, s.adapterSink(queryChain))
}

// dispatch is the query stack sink. It resolves the query against the
// root scaffold and answers NXDOMAIN when no rule matches.
func (s *Server) dispatch(ctx context.Context, q *query.Query) (*query.Response, error) {
	next, ok := s.root.Lookup(q)
	if !ok {
		return query.NXDomain(), nil
	}
	return next(ctx, q)
}

// adapterSink bridges the raw stack into the query stack. Messages that
// cannot be represented as a query are answered at the wire level.
func (s *Server) adapterSink(queryChain middleware.Next) middleware.RawNext {
	return func(ctx context.Context, m *dns.Msg, meta middleware.QueryMeta) (*dns.Msg, error) {
		if m.Opcode != dns.OpcodeQuery {
			return codec.ErrorReply(m, dns.RcodeNotImplemented), nil
		}
		if len(m.Question) != 1 {
			return codec.ErrorReply(m, dns.RcodeRefused), nil
		}

		question := m.Question[0]
		name := strings.TrimSuffix(question.Name, ".")
		if err := nsname.Validate(name); err != nil {
			return codec.ErrorReply(m, dns.RcodeFormatError), nil
		}

		q := &query.Query{
			Name:       name,
			Type:       question.Qtype,
			ClientAddr: meta.ClientAddr,
			FromUDP:    meta.FromUDP,
		}
		resp, err := queryChain(ctx, q)
		if err != nil {
			return nil, err
		}
		return codec.MergeResponse(m, resp), nil
	}
}

// Handle runs one decoded message through the raw stack. A nil reply with
// a nil error means the message is dropped without an answer. Handle
// respects the worker limit, it blocks until a slot is free or ctx is
// done.
func (s *Server) Handle(ctx context.Context, m *dns.Msg, meta middleware.QueryMeta) (*dns.Msg, error) {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
	}
	return s.rawChain(ctx, m, meta)
}
