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

package middleware

import (
	"context"

	"github.com/IrineSistiana/nsrouter/pkg/codec"
	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// ExceptionHandler turns a failed query into a response. Error text must
// never be copied into the response.
type ExceptionHandler func(ctx context.Context, q *query.Query, err error) (*query.Response, error)

// ExceptionMiddleware converts errors from the inner stack into responses.
// Handlers are registered per error class. Dispatch walks the error's
// class chain upward, the most specific registration wins. Unhandled
// errors, and errors raised by a handler itself, fall back to SERVFAIL.
type ExceptionMiddleware struct {
	logger   *zap.Logger
	handlers map[*nserrors.Class]ExceptionHandler
}

func NewExceptionMiddleware(logger *zap.Logger) *ExceptionMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionMiddleware{
		logger:   logger,
		handlers: make(map[*nserrors.Class]ExceptionHandler),
	}
}

// Handle registers h for class, replacing any previous registration.
func (m *ExceptionMiddleware) Handle(class *nserrors.Class, h ExceptionHandler) {
	m.handlers[class] = h
}

func (m *ExceptionMiddleware) lookup(class *nserrors.Class) ExceptionHandler {
	for c := class; c != nil; c = c.Parent() {
		if h, ok := m.handlers[c]; ok {
			return h
		}
	}
	return nil
}

// Wrap returns the middleware function.
func (m *ExceptionMiddleware) Wrap() Middleware {
	return func(ctx context.Context, q *query.Query, next Next) (*query.Response, error) {
		resp, err := next(ctx, q)
		if err == nil {
			return resp, nil
		}

		class := nserrors.ClassOf(err, nserrors.Handler)
		m.logger.Warn("query failed",
			zap.String("name", q.Name),
			zap.Uint16("qtype", q.Type),
			zap.Stringer("class", class),
			zap.Error(err),
		)

		if h := m.lookup(class); h != nil {
			resp, herr := h(ctx, q, err)
			if herr == nil {
				return resp, nil
			}
			m.logger.Error("exception handler failed",
				zap.Stringer("class", class),
				zap.Error(herr),
			)
		}
		return query.ServFail(), nil
	}
}

// WrapPropagate is like Wrap, but errors with no registered handler, and
// errors raised by a handler, are returned to the caller instead of being
// answered with SERVFAIL. Nested containers use it so that an enclosing
// container still sees what they could not handle.
func (m *ExceptionMiddleware) WrapPropagate() Middleware {
	return func(ctx context.Context, q *query.Query, next Next) (*query.Response, error) {
		resp, err := next(ctx, q)
		if err == nil {
			return resp, nil
		}

		class := nserrors.ClassOf(err, nserrors.Handler)
		h := m.lookup(class)
		if h == nil {
			return nil, err
		}
		resp, herr := h(ctx, q, err)
		if herr == nil {
			return resp, nil
		}
		m.logger.Error("exception handler failed",
			zap.Stringer("class", class),
			zap.Error(herr),
		)
		return nil, herr
	}
}

// RawExceptionHandler turns a failure in the raw stack into a reply
// message.
type RawExceptionHandler func(ctx context.Context, req *dns.Msg, meta QueryMeta, err error) (*dns.Msg, error)

// RawExceptionMiddleware is the raw stack counterpart of
// ExceptionMiddleware. The fallback is a SERVFAIL reply built from the
// request.
type RawExceptionMiddleware struct {
	logger   *zap.Logger
	handlers map[*nserrors.Class]RawExceptionHandler
}

func NewRawExceptionMiddleware(logger *zap.Logger) *RawExceptionMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RawExceptionMiddleware{
		logger:   logger,
		handlers: make(map[*nserrors.Class]RawExceptionHandler),
	}
}

func (m *RawExceptionMiddleware) Handle(class *nserrors.Class, h RawExceptionHandler) {
	m.handlers[class] = h
}

func (m *RawExceptionMiddleware) lookup(class *nserrors.Class) RawExceptionHandler {
	for c := class; c != nil; c = c.Parent() {
		if h, ok := m.handlers[c]; ok {
			return h
		}
	}
	return nil
}

func (m *RawExceptionMiddleware) Wrap() RawMiddleware {
	return func(ctx context.Context, req *dns.Msg, meta QueryMeta, next RawNext) (*dns.Msg, error) {
		resp, err := next(ctx, req, meta)
		if err == nil {
			return resp, nil
		}

		class := nserrors.ClassOf(err, nserrors.RawHandler)
		m.logger.Warn("message processing failed",
			zap.Stringer("class", class),
			zap.Error(err),
		)

		if h := m.lookup(class); h != nil {
			resp, herr := h(ctx, req, meta, err)
			if herr == nil {
				return resp, nil
			}
			m.logger.Error("raw exception handler failed",
				zap.Stringer("class", class),
				zap.Error(herr),
			)
		}
		return codec.ErrorReply(req, dns.RcodeServerFailure), nil
	}
}
