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

// Package safeclose coordinates the shutdown of a service and its helper
// goroutines. CloseWait returns only after the service goroutine and
// every helper started through Go have exited.
package safeclose

import "sync"

// Closer ties a service goroutine and its helpers to one shutdown
// signal.
//
// The service goroutine waits on Closing and calls Done before it
// returns. Helpers run through Go and return when Closing is closed. A
// goroutine that hits a fatal error calls Shutdown with the cause.
// External callers call CloseWait.
type Closer struct {
	mu      sync.Mutex
	closed  bool
	cause   error
	closing chan struct{}

	helpers  sync.WaitGroup
	doneOnce sync.Once
	done     chan struct{}
}

func NewCloser() *Closer {
	return &Closer{
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Shutdown closes the Closing channel and records cause. The first call
// wins, later calls are no-ops.
func (c *Closer) Shutdown(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cause = cause
	close(c.closing)
}

// Closing is closed once Shutdown or CloseWait has been called.
func (c *Closer) Closing() <-chan struct{} { return c.closing }

// Cause returns the error recorded by the first Shutdown call. It is nil
// for a plain close.
func (c *Closer) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Go runs f in a helper goroutine tracked by CloseWait. f must return
// once the channel it receives is closed. After shutdown f does not run.
func (c *Closer) Go(f func(closing <-chan struct{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.helpers.Add(1)
	go func() {
		defer c.helpers.Done()
		f(c.closing)
	}()
}

// Done marks the service goroutine as finished and unblocks CloseWait.
// It is safe to call multiple times.
func (c *Closer) Done() {
	c.doneOnce.Do(func() { close(c.done) })
}

// CloseWait initiates shutdown and blocks until Done has been called and
// every helper has returned. It must not be called from the service
// goroutine or a helper.
func (c *Closer) CloseWait() {
	c.Shutdown(nil)
	c.helpers.Wait()
	<-c.done
}
