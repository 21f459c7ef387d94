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
	"errors"
	"sync"
	"testing"

	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestComposeOrder(t *testing.T) {
	var trace []string
	mk := func(tag string) Middleware {
		return func(ctx context.Context, q *query.Query, next Next) (*query.Response, error) {
			trace = append(trace, tag+" in")
			resp, err := next(ctx, q)
			trace = append(trace, tag+" out")
			return resp, err
		}
	}
	sink := func(ctx context.Context, q *query.Query) (*query.Response, error) {
		trace = append(trace, "sink")
		return query.Answers(), nil
	}

	next := Compose([]Middleware{mk("a"), mk("b")}, sink)
	_, err := next(context.Background(), &query.Query{Name: "example.com", Type: dns.TypeA})
	require.NoError(t, err)
	require.Equal(t, []string{"a in", "b in", "sink", "b out", "a out"}, trace)
}

func TestExceptionMiddlewareDispatch(t *testing.T) {
	em := NewExceptionMiddleware(nil)

	var caught *nserrors.Class
	em.Handle(nserrors.Handler, func(ctx context.Context, q *query.Query, err error) (*query.Response, error) {
		caught = nserrors.Handler
		return query.Refused(), nil
	})
	em.Handle(nserrors.NotImplemented, func(ctx context.Context, q *query.Query, err error) (*query.Response, error) {
		caught = nserrors.NotImplemented
		return &query.Response{Rcode: dns.RcodeNotImplemented}, nil
	})

	fail := func(err error) Next {
		return func(ctx context.Context, q *query.Query) (*query.Response, error) {
			return nil, err
		}
	}
	q0 := &query.Query{Name: "example.com", Type: dns.TypeA}
	mw := em.Wrap()

	// The most specific registration wins.
	resp, err := mw(context.Background(), q0, fail(nserrors.E(nserrors.NotImplemented, nil)))
	require.NoError(t, err)
	require.Equal(t, dns.RcodeNotImplemented, resp.Rcode)
	require.Equal(t, nserrors.NotImplemented, caught)

	// A subclass without its own registration falls back to the parent.
	dbClass := nserrors.NewClass("database", nserrors.Handler)
	resp, err = mw(context.Background(), q0, fail(nserrors.E(dbClass, errors.New("down"))))
	require.NoError(t, err)
	require.Equal(t, dns.RcodeRefused, resp.Rcode)
	require.Equal(t, nserrors.Handler, caught)

	// Untagged errors default to the handler class.
	resp, err = mw(context.Background(), q0, fail(errors.New("boom")))
	require.NoError(t, err)
	require.Equal(t, dns.RcodeRefused, resp.Rcode)

	// Classes outside the registered subtree fall back to SERVFAIL.
	resp, err = mw(context.Background(), q0, fail(nserrors.E(nserrors.Decode, nil)))
	require.NoError(t, err)
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestExceptionMiddlewarePropagate(t *testing.T) {
	em := NewExceptionMiddleware(nil)
	em.Handle(nserrors.Handler, func(ctx context.Context, q *query.Query, err error) (*query.Response, error) {
		return query.Refused(), nil
	})

	fail := func(err error) Next {
		return func(ctx context.Context, q *query.Query) (*query.Response, error) {
			return nil, err
		}
	}
	q0 := &query.Query{Name: "example.com", Type: dns.TypeA}
	mw := em.WrapPropagate()

	// Registered classes are answered as usual.
	resp, err := mw(context.Background(), q0, fail(nserrors.E(nserrors.Handler, nil)))
	require.NoError(t, err)
	require.Equal(t, dns.RcodeRefused, resp.Rcode)

	// Unregistered classes pass through instead of becoming SERVFAIL.
	wantErr := nserrors.E(nserrors.Decode, errors.New("bad payload"))
	_, err = mw(context.Background(), q0, fail(wantErr))
	require.ErrorIs(t, err, wantErr)
}

func TestExceptionHandlerFailureFallsBack(t *testing.T) {
	em := NewExceptionMiddleware(nil)
	em.Handle(nserrors.Root, func(ctx context.Context, q *query.Query, err error) (*query.Response, error) {
		return nil, errors.New("handler blew up")
	})
	resp, err := em.Wrap()(context.Background(), &query.Query{Name: "x", Type: dns.TypeA},
		func(ctx context.Context, q *query.Query) (*query.Response, error) {
			return nil, errors.New("boom")
		})
	require.NoError(t, err)
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestRawExceptionMiddlewareDefault(t *testing.T) {
	em := NewRawExceptionMiddleware(nil)
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	resp, err := em.Wrap()(context.Background(), req, QueryMeta{},
		func(ctx context.Context, m *dns.Msg, meta QueryMeta) (*dns.Msg, error) {
			return nil, errors.New("boom")
		})
	require.NoError(t, err)
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
	require.Equal(t, req.Id, resp.Id)
}

func TestHooksBeforeFirstQueryOnce(t *testing.T) {
	h := NewHooks()
	var n int
	h.OnBeforeFirstQuery(func(ctx context.Context) error {
		n++
		return nil
	})

	mw := h.Wrap()
	sink := func(ctx context.Context, q *query.Query) (*query.Response, error) {
		return query.Answers(), nil
	}
	q0 := &query.Query{Name: "example.com", Type: dns.TypeA}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mw(context.Background(), q0, sink)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, n)
}

func TestHooksBeforeFirstQueryFailureIsSticky(t *testing.T) {
	h := NewHooks()
	boom := errors.New("init failed")
	h.OnBeforeFirstQuery(func(ctx context.Context) error { return boom })

	mw := h.Wrap()
	sink := func(ctx context.Context, q *query.Query) (*query.Response, error) {
		t.Fatal("sink must not run")
		return nil, nil
	}
	q0 := &query.Query{Name: "example.com", Type: dns.TypeA}

	for i := 0; i < 3; i++ {
		_, err := mw(context.Background(), q0, sink)
		require.ErrorIs(t, err, boom)
	}
}

func TestHooksShortCircuitAndAfter(t *testing.T) {
	h := NewHooks()
	h.OnBeforeQuery(func(ctx context.Context, q *query.Query) (*query.Response, error) {
		if q.Name == "blocked.example.com" {
			return query.Refused(), nil
		}
		return nil, nil
	})
	var afterRan bool
	h.OnAfterQuery(func(ctx context.Context, q *query.Query, resp *query.Response) (*query.Response, error) {
		afterRan = true
		return resp, nil
	})

	mw := h.Wrap()
	var sinkRan bool
	sink := func(ctx context.Context, q *query.Query) (*query.Response, error) {
		sinkRan = true
		return query.Answers(), nil
	}

	resp, err := mw(context.Background(), &query.Query{Name: "blocked.example.com", Type: dns.TypeA}, sink)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeRefused, resp.Rcode)
	require.False(t, sinkRan)
	require.True(t, afterRan)

	afterRan = false
	resp, err = mw(context.Background(), &query.Query{Name: "ok.example.com", Type: dns.TypeA}, sink)
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.True(t, sinkRan)
	require.True(t, afterRan)
}
