// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pool provides a pool of byte buffers for reading whole files of
// widely varying sizes. A plain sync.Pool keeps a buffer sized for the
// largest file alive for as long as smaller files keep being read (see
// [issue 23199]); Buffers drops buffers that are much larger than what is
// typically needed.
//
// [issue 23199]: https://github.com/golang/go/issues/23199
package pool

import (
	"math"
	"sync"
	"sync/atomic"
)

// Buffers is a pool of byte slices. The zero value is ready to use.
type Buffers struct {
	// MinSize is the smallest capacity allocated, and the size below which
	// a buffer is always worth keeping.
	MinSize int

	pool    sync.Pool
	avgSize uint64 // float64 bits, updated with atomic load/store
}

// Get returns a buffer of length n. Its contents are unspecified.
func (p *Buffers) Get(n int) []byte {
	if b, ok := p.pool.Get().([]byte); ok && cap(b) >= n {
		return b[:n]
	}
	c := n
	if c < p.MinSize {
		c = p.MinSize
	}
	return make([]byte, n, c)
}

// Put returns b to the pool. len(b) is taken as the size that was needed,
// cap(b) as the cost of keeping it. Put reports whether b was retained; b
// must not be used after Put either way.
func (p *Buffers) Put(b []byte) bool {
	// Concurrent Puts may lose updates, an approximate average is enough.
	avg := math.Float64frombits(atomic.LoadUint64(&p.avgSize))
	avg = decay(avg, float64(len(b)), float64(p.MinSize))
	atomic.StoreUint64(&p.avgSize, math.Float64bits(avg))

	if float64(cap(b)) > 10*avg {
		return false
	}
	p.pool.Put(b[:0])
	return true
}

// decay returns val if it is larger than prev, and otherwise moves prev
// halfway towards val, so that the average rises quickly and falls slowly.
// Values below floor count as floor.
func decay(prev, val, floor float64) float64 {
	if val < floor {
		val = floor
	}
	if prev == 0 || val > prev {
		return val
	}
	const factor = 0.5
	return prev*factor + val*(1-factor)
}
