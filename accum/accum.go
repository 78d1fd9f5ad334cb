// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package accum

import (
	"math"
	"sync/atomic"

	"github.com/grailbio/rnaquant/logspace"
)

// Float64 is a float64 that can be updated from many goroutines at once.  The
// IEEE-754 bit pattern is kept in an atomic.Uint64, so compare-and-swap
// compares bits rather than values: NaN and -0 cannot make the retry loops
// below spin.
//
// The zero value holds 0.0.  A Float64 must not be copied after first use.
type Float64 struct {
	bits atomic.Uint64
}

// NewFloat64 creates a cell holding v.
func NewFloat64(v float64) *Float64 {
	f := &Float64{}
	f.Store(v)
	return f
}

// Load atomically reads the value.
func (f *Float64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Store atomically overwrites the value.
func (f *Float64) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// CompareAndSwap replaces old with new if the cell still holds exactly old.
func (f *Float64) CompareAndSwap(old, new float64) bool {
	return f.bits.CompareAndSwap(math.Float64bits(old), math.Float64bits(new))
}

// IncLoop adds delta to v.  Each attempt reads the current value, computes
// current+delta and tries to publish it; when another goroutine won the race
// the attempt is repeated with the value it published.  No update is lost.
//
// The loop is unbounded and has no backoff.  Under realistic contention it
// finishes in a handful of attempts; pathological contention on a single cell
// can livelock it.
func IncLoop(v *Float64, delta float64) {
	for {
		oldBits := v.bits.Load()
		newMass := math.Float64frombits(oldBits) + delta
		if v.bits.CompareAndSwap(oldBits, math.Float64bits(newMass)) {
			return
		}
	}
}

// IncLoopLog is IncLoop in log space: v becomes logspace.Add(v, inc).  The
// final value of a cell is the log-sum-exp of every increment applied to it,
// whatever the arrival order.
func IncLoopLog(v *Float64, inc float64) {
	for {
		oldBits := v.bits.Load()
		newMass := logspace.Add(math.Float64frombits(oldBits), inc)
		if v.bits.CompareAndSwap(oldBits, math.Float64bits(newMass)) {
			return
		}
	}
}

// IncLoopPlain is IncLoop for a value only one goroutine touches.
func IncLoopPlain(v *float64, delta float64) {
	*v += delta
}

// IncLoopLogPlain is IncLoopLog for a value only one goroutine touches.
func IncLoopLogPlain(v *float64, inc float64) {
	*v = logspace.Add(*v, inc)
}
