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

// Package scaffold groups rules into nestable containers.
//
// A scaffold holds an ordered list of rules and mounted child scaffolds.
// Lookup walks the list in order, the first match wins. A mounted child is
// consulted when its gate matches, and when nothing inside the child
// matches the walk falls through to the next entry of the parent. A
// scaffold's middleware, hooks and exception handlers wrap only queries
// that matched a rule inside it.
package scaffold

import (
	"context"
	"sync"

	"github.com/IrineSistiana/nsrouter/pkg/middleware"
	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/IrineSistiana/nsrouter/pkg/rules"
)

type entry struct {
	// Exactly one of rule and child is set.
	rule *rules.Rule

	child     *Scaffold
	gate      rules.NameMatcher
	gateTypes rules.TypeSet
}

// Scaffold is a nestable rule container.
type Scaffold struct {
	name string

	mu      sync.Mutex
	frozen  bool
	entries []entry
	mws     []middleware.Middleware
	hooks   *middleware.Hooks
	em      *middleware.ExceptionMiddleware

	// Built at freeze time.
	wrap func(middleware.Next) middleware.Next
}

// New creates an empty scaffold. The name is used in error messages.
func New(name string) *Scaffold {
	return &Scaffold{
		name:  name,
		hooks: middleware.NewHooks(),
	}
}

func (s *Scaffold) Name() string { return s.name }

func (s *Scaffold) errFrozen() error {
	return nserrors.Errorf(nserrors.Configuration, "scaffold %s is frozen, registration must happen before the server starts", s.name)
}

// Register appends a rule.
func (s *Scaffold) Register(r *rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.errFrozen()
	}
	s.entries = append(s.entries, entry{rule: r})
	return nil
}

// Rule builds a rule with rules.New and appends it.
func (s *Scaffold) Rule(pattern any, types rules.TypeSet, h query.Handler, opts ...rules.Option) error {
	r, err := rules.New(pattern, types, h, opts...)
	if err != nil {
		return err
	}
	return s.Register(r)
}

// Mount attaches child behind a gate. The child is consulted for queries
// whose name matches gate and whose type is in gateTypes.
//
// Scaffolds must form a DAG. Mounting a child that already reaches s is a
// configuration error.
func (s *Scaffold) Mount(child *Scaffold, gate rules.NameMatcher, gateTypes rules.TypeSet) error {
	if child == nil {
		return nserrors.Errorf(nserrors.Configuration, "nil scaffold")
	}
	if gate == nil {
		return nserrors.Errorf(nserrors.Configuration, "nil gate matcher")
	}
	if gateTypes.Empty() {
		return nserrors.Errorf(nserrors.Configuration, "empty gate type set")
	}
	if child.reaches(s, make(map[*Scaffold]struct{})) {
		return nserrors.Errorf(nserrors.Configuration, "mounting %s on %s would create a cycle", child.name, s.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.errFrozen()
	}
	s.entries = append(s.entries, entry{child: child, gate: gate, gateTypes: gateTypes})
	return nil
}

// MountZone mounts child under a case folding zone gate for all query
// types.
func (s *Scaffold) MountZone(child *Scaffold, zone string) error {
	m, err := rules.NewZoneMatcher(zone, false)
	if err != nil {
		return err
	}
	return s.Mount(child, m, rules.AnyType())
}

// reaches reports whether s reaches target through its mounts.
func (s *Scaffold) reaches(target *Scaffold, visited map[*Scaffold]struct{}) bool {
	if s == target {
		return true
	}
	if _, ok := visited[s]; ok {
		return false
	}
	visited[s] = struct{}{}

	s.mu.Lock()
	entries := s.entries
	s.mu.Unlock()

	for _, e := range entries {
		if e.child != nil && e.child.reaches(target, visited) {
			return true
		}
	}
	return false
}

// Use appends a middleware. It wraps queries matched inside this
// scaffold.
func (s *Scaffold) Use(mw middleware.Middleware) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.errFrozen()
	}
	s.mws = append(s.mws, mw)
	return nil
}

// HandleException registers an exception handler for an error class and
// its descendants. It catches errors raised by handlers and middleware
// inside this scaffold before they reach an enclosing scaffold or the
// server.
func (s *Scaffold) HandleException(class *nserrors.Class, h middleware.ExceptionHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.errFrozen()
	}
	if s.em == nil {
		s.em = middleware.NewExceptionMiddleware(nil)
	}
	s.em.Handle(class, h)
	return nil
}

func (s *Scaffold) OnBeforeFirstQuery(f middleware.BeforeFirstQueryHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.errFrozen()
	}
	s.hooks.OnBeforeFirstQuery(f)
	return nil
}

func (s *Scaffold) OnBeforeQuery(f middleware.BeforeQueryHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.errFrozen()
	}
	s.hooks.OnBeforeQuery(f)
	return nil
}

func (s *Scaffold) OnAfterQuery(f middleware.AfterQueryHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return s.errFrozen()
	}
	s.hooks.OnAfterQuery(f)
	return nil
}

// Freeze composes the middleware of this scaffold and its children and
// rejects further registration. It is safe to call multiple times.
func (s *Scaffold) Freeze() {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return
	}
	s.frozen = true

	var mws []middleware.Middleware
	if s.em != nil {
		// Outermost, so the handlers see errors from this scaffold's
		// own middleware too. Unhandled errors propagate to the
		// enclosing scaffold.
		mws = append(mws, s.em.WrapPropagate())
	}
	mws = append(mws, s.mws...)
	if !s.hooks.Empty() {
		mws = append(mws, s.hooks.Wrap())
	}
	s.wrap = func(sink middleware.Next) middleware.Next {
		if len(mws) == 0 {
			return sink
		}
		return middleware.Compose(mws, sink)
	}
	entries := s.entries
	s.mu.Unlock()

	for _, e := range entries {
		if e.child != nil {
			e.child.Freeze()
		}
	}
}

// Lookup returns the composed invocation for the first rule matching q,
// walking mounted children depth first with fall-through. It must only be
// called after Freeze.
func (s *Scaffold) Lookup(q *query.Query) (middleware.Next, bool) {
	for _, e := range s.entries {
		if e.rule != nil {
			if e.rule.Match(q) {
				h := e.rule.Handler()
				return s.wrap(func(ctx context.Context, q *query.Query) (*query.Response, error) {
					return h.ServeQuery(ctx, q)
				}), true
			}
			continue
		}
		if !e.gateTypes.Match(q.Type) || !e.gate.MatchName(q.Name) {
			continue
		}
		if next, ok := e.child.Lookup(q); ok {
			return s.wrap(next), true
		}
		// Nothing inside the child matched, fall through.
	}
	return nil, false
}
