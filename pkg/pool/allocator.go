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

// Package pool has a size-sharded []byte allocator backed by sync.Pool.
package pool

import (
	"fmt"
	"math/bits"
	"sync"
)

// Pooled capacities are powers of two up to 1<<maxPooledShift. A DNS
// message is bounded by the 16 bit wire length, 1<<17 leaves room for
// the TCP length header and the packing slack on top of 65535. Larger
// requests are served by plain make and never pooled.
const maxPooledShift = 17

var defaultAllocator = NewAllocator()

// GetBuf returns a []byte of the given length from the default allocator.
// It panics if size < 0.
func GetBuf(size int) []byte {
	return defaultAllocator.Get(size)
}

// ReleaseBuf returns b to the default allocator.
func ReleaseBuf(b []byte) {
	defaultAllocator.Release(b)
}

// Allocator hands out []byte with power-of-two capacities. Space waste
// is bounded by 50%.
type Allocator struct {
	pools [maxPooledShift + 1]sync.Pool
}

func NewAllocator() *Allocator {
	a := new(Allocator)
	for i := range a.pools {
		c := 1 << i
		a.pools[i].New = func() interface{} {
			b := make([]byte, c)
			return &b
		}
	}
	return a
}

// Get returns a []byte with length size and the smallest fitting
// power-of-two capacity. Oversize requests get an exact-size buffer that
// bypasses the pools.
func (a *Allocator) Get(size int) []byte {
	if size < 0 {
		panic(fmt.Sprintf("invalid buffer size %d", size))
	}
	i := shard(size)
	if i > maxPooledShift {
		return make([]byte, size)
	}
	b := a.pools[i].Get().(*[]byte)
	return (*b)[:size]
}

// Release puts b back. Buffers that did not come from a pool, including
// oversize ones from Get, are left to the GC.
func (a *Allocator) Release(b []byte) {
	c := cap(b)
	i := shard(c)
	if c == 0 || i > maxPooledShift || c != 1<<i {
		return
	}
	b = b[:c]
	a.pools[i].Put(&b)
}

func shard(size int) int {
	if size <= 1 {
		return 0
	}
	return bits.Len64(uint64(size - 1))
}
