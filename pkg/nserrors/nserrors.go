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

// Package nserrors defines the error taxonomy used to route failures to
// exception handlers. Errors belong to a Class. Classes form a tree and a
// handler registered for a class also covers its subclasses, the most
// specific registration wins.
package nserrors

import (
	"context"
	"errors"
	"fmt"
)

// Class is a node in the error class tree.
type Class struct {
	name   string
	parent *Class
}

// Class tree. Root covers everything.
var (
	Root          = &Class{name: "error"}
	Configuration = NewClass("configuration", Root)
	Decode        = NewClass("decode", Root)
	Handler       = NewClass("handler", Root)
	RawHandler    = NewClass("raw handler", Root)
	Cancelled     = NewClass("cancelled", Root)

	NotImplemented = NewClass("not implemented", Handler)
)

// NewClass creates a class under parent. A nil parent means Root.
func NewClass(name string, parent *Class) *Class {
	if parent == nil {
		parent = Root
	}
	return &Class{name: name, parent: parent}
}

func (c *Class) String() string { return c.name }

// Parent returns the parent class. Root's parent is nil.
func (c *Class) Parent() *Class { return c.parent }

// Is reports whether c is target or a descendant of target.
func (c *Class) Is(target *Class) bool {
	for n := c; n != nil; n = n.parent {
		if n == target {
			return true
		}
	}
	return false
}

// Error is an error tagged with a Class.
type Error struct {
	Class *Class
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Class.name
	}
	return fmt.Sprintf("%s: %s", e.Class.name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with class. A nil err yields an error carrying only the
// class name.
func E(class *Class, err error) *Error {
	return &Error{Class: class, Err: err}
}

// Errorf is E with fmt.Errorf formatting.
func Errorf(class *Class, format string, args ...any) *Error {
	return &Error{Class: class, Err: fmt.Errorf(format, args...)}
}

// ClassOf returns the class of err. Tagged errors keep their class,
// context cancellation and deadline errors map to Cancelled, anything else
// to fallback. A nil fallback means Handler.
func ClassOf(err error, fallback *Class) *Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	if fallback == nil {
		return Handler
	}
	return fallback
}
