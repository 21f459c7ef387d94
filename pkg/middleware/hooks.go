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
	"sync"

	"github.com/IrineSistiana/nsrouter/pkg/query"
)

// BeforeFirstQueryHook runs exactly once, before the first query passes
// the hook layer.
type BeforeFirstQueryHook func(ctx context.Context) error

// BeforeQueryHook runs before every query. A non-nil response
// short-circuits the rest of the stack.
type BeforeQueryHook func(ctx context.Context, q *query.Query) (*query.Response, error)

// AfterQueryHook transforms the response, including short-circuited and
// nil responses.
type AfterQueryHook func(ctx context.Context, q *query.Query, resp *query.Response) (*query.Response, error)

// Hooks is the hook layer of a query stack.
//
// The before-first hooks run under a sync.Once. If any of them fails the
// failure is kept and every query from then on fails with it.
type Hooks struct {
	beforeFirst []BeforeFirstQueryHook
	before      []BeforeQueryHook
	after       []AfterQueryHook

	firstOnce sync.Once
	firstErr  error
}

func NewHooks() *Hooks {
	return &Hooks{}
}

func (h *Hooks) OnBeforeFirstQuery(f BeforeFirstQueryHook) {
	h.beforeFirst = append(h.beforeFirst, f)
}

func (h *Hooks) OnBeforeQuery(f BeforeQueryHook) {
	h.before = append(h.before, f)
}

func (h *Hooks) OnAfterQuery(f AfterQueryHook) {
	h.after = append(h.after, f)
}

// Empty reports whether no hook is registered.
func (h *Hooks) Empty() bool {
	return len(h.beforeFirst) == 0 && len(h.before) == 0 && len(h.after) == 0
}

// Wrap returns the middleware function.
func (h *Hooks) Wrap() Middleware {
	return func(ctx context.Context, q *query.Query, next Next) (*query.Response, error) {
		h.firstOnce.Do(func() {
			for _, f := range h.beforeFirst {
				if err := f(ctx); err != nil {
					h.firstErr = err
					return
				}
			}
		})
		if h.firstErr != nil {
			return nil, h.firstErr
		}

		var resp *query.Response
		var err error
		for _, f := range h.before {
			resp, err = f(ctx, q)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				break
			}
		}
		if resp == nil {
			resp, err = next(ctx, q)
			if err != nil {
				return nil, err
			}
		}

		for _, f := range h.after {
			resp, err = f(ctx, q, resp)
			if err != nil {
				return nil, err
			}
		}
		return resp, nil
	}
}
