/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package barmsg

import (
	"fmt"
	"sync"
)

// MaxAllocSize bounds a single request or response buffer.
const MaxAllocSize = 64 * 1024

// Allocator hands out the zero-filled, per-call buffers used by a single
// exchange. Every buffer obtained from Alloc is given back to Free exactly
// once.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
}

type heapAllocator struct{}

// HeapAllocator allocates from the Go heap; Free is a no-op.
var HeapAllocator Allocator = heapAllocator{}

func (heapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 || size > MaxAllocSize {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	return make([]byte, size), nil
}

func (heapAllocator) Free([]byte) {}

// TrackingAllocator wraps another allocator and accounts for every buffer it
// hands out. It is used to prove that no call leaks or double frees a buffer.
type TrackingAllocator struct {
	sync.Mutex

	// Allocator is the backing allocator; HeapAllocator when nil.
	Allocator Allocator

	// Limit, when non-zero, fails any Alloc that would raise the number of
	// outstanding buffers above it. A negative limit fails every Alloc.
	Limit int

	live        map[*byte]int
	allocs      int
	frees       int
	doubleFrees int
}

func NewTrackingAllocator() *TrackingAllocator {
	return &TrackingAllocator{Allocator: HeapAllocator}
}

func (a *TrackingAllocator) Alloc(size int) ([]byte, error) {
	a.Lock()
	defer a.Unlock()

	if a.live == nil {
		a.live = make(map[*byte]int)
	}

	if a.Limit != 0 && len(a.live) >= a.Limit {
		return nil, fmt.Errorf("allocation limit %d reached", a.Limit)
	}

	backing := a.Allocator
	if backing == nil {
		backing = HeapAllocator
	}

	buf, err := backing.Alloc(size)
	if err != nil {
		return nil, err
	}

	a.live[&buf[0]] = size
	a.allocs++

	return buf, nil
}

func (a *TrackingAllocator) Free(buf []byte) {
	a.Lock()
	defer a.Unlock()

	if len(buf) == 0 {
		a.doubleFrees++
		return
	}

	key := &buf[0]
	if _, ok := a.live[key]; !ok {
		a.doubleFrees++
		return
	}

	delete(a.live, key)
	a.frees++

	backing := a.Allocator
	if backing == nil {
		backing = HeapAllocator
	}
	backing.Free(buf)
}

// Outstanding returns the number of buffers allocated and not yet freed.
func (a *TrackingAllocator) Outstanding() int {
	a.Lock()
	defer a.Unlock()
	return len(a.live)
}

// Allocs returns the number of successful allocations.
func (a *TrackingAllocator) Allocs() int {
	a.Lock()
	defer a.Unlock()
	return a.allocs
}

// Frees returns the number of buffers returned.
func (a *TrackingAllocator) Frees() int {
	a.Lock()
	defer a.Unlock()
	return a.frees
}

// DoubleFrees returns the number of Free calls for buffers that were not
// outstanding.
func (a *TrackingAllocator) DoubleFrees() int {
	a.Lock()
	defer a.Unlock()
	return a.doubleFrees
}
