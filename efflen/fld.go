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

package efflen

import (
	"math"

	"github.com/grailbio/rnaquant/accum"
	"github.com/grailbio/rnaquant/logspace"
)

// FragLengthDist is a discretized fragment-length distribution over
// [1, maxLen], learned online.  Mass is kept in log space, one accum cell per
// length, so EM workers can add observations concurrently.  The read methods
// (PMF, LogPMFs, Mean) must not race with AddObservation.
type FragLengthDist struct {
	maxLen int
	// masses[l] is the log mass of fragment length l.  masses[0] stays LogZero.
	masses []accum.Float64
}

// NewFragLengthDist creates a distribution seeded with a Gaussian prior of the
// given mean and standard deviation, truncated to [1, maxLen] and scaled to
// carry priorMass in total.  A priorMass of 0 gives an empty distribution.
func NewFragLengthDist(mean, sd float64, maxLen int, priorMass float64) *FragLengthDist {
	if maxLen < 1 {
		maxLen = 1
	}
	if sd < 1 {
		sd = 1
	}
	d := &FragLengthDist{
		maxLen: maxLen,
		masses: make([]accum.Float64, maxLen+1),
	}
	d.masses[0].Store(logspace.LogZero)
	logPrior := make([]float64, maxLen+1)
	logPrior[0] = logspace.LogZero
	for l := 1; l <= maxLen; l++ {
		z := (float64(l) - mean) / sd
		logPrior[l] = -0.5 * z * z
	}
	norm := logspace.SumExp(logPrior)
	logMass := math.Log(priorMass)
	for l := 1; l <= maxLen; l++ {
		v := logspace.LogZero
		if priorMass > 0 && !logspace.IsZero(norm) {
			v = logPrior[l] - norm + logMass
		}
		d.masses[l].Store(v)
	}
	return d
}

// MaxLen returns the longest fragment length the distribution covers.
func (d *FragLengthDist) MaxLen() int { return d.maxLen }

// AddObservation adds exp(logMass) to length l.  Lengths outside [1, MaxLen]
// are ignored and false is returned.
func (d *FragLengthDist) AddObservation(l int, logMass float64) bool {
	if l < 1 || l > d.maxLen {
		return false
	}
	accum.IncLoopLog(&d.masses[l], logMass)
	return true
}

// LogPMFs returns the normalized log probability of every length in
// [0, MaxLen].  If the distribution holds no mass, every entry is LogZero.
func (d *FragLengthDist) LogPMFs() []float64 {
	out := make([]float64, d.maxLen+1)
	for l := range out {
		out[l] = d.masses[l].Load()
	}
	total := logspace.SumExp(out)
	for l := range out {
		if logspace.IsZero(total) {
			out[l] = logspace.LogZero
			continue
		}
		out[l] -= total
	}
	return out
}

// PMF returns the normalized probability of every length in [0, MaxLen].
func (d *FragLengthDist) PMF() []float64 {
	out := d.LogPMFs()
	for l, v := range out {
		out[l] = math.Exp(v)
	}
	return out
}

// Mean returns the expected fragment length.
func (d *FragLengthDist) Mean() float64 {
	var mean float64
	for l, p := range d.PMF() {
		mean += float64(l) * p
	}
	return mean
}
