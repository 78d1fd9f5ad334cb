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

// Package efflen recomputes transcript effective lengths between EM rounds.
//
// The effective length of a transcript is the number of positions a fragment
// can start from, averaged over the fragment-length distribution and, when
// positional bias correction is on, weighted by how much more (or less)
// often fragments start in each part of a transcript than a uniform model
// predicts.
package efflen

import (
	"fmt"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/rnaquant/accum"
)

// Transcript is the metadata the updater needs about one transcript.
type Transcript struct {
	Name      string
	RefLength int
}

// Experiment is the per-run state the updater reads.  PosBias may be nil when
// bias correction is off.
type Experiment struct {
	Transcripts []Transcript
	FLD         *FragLengthDist
	PosBias     *PosBias
}

type Opts struct {
	// PosBiasCorrect enables positional bias correction.
	PosBiasCorrect bool `yaml:"pos_bias_correct"`
	// MinAlpha is the abundance below which a transcript keeps its previous
	// effective length in non-final rounds.
	MinAlpha float64 `yaml:"min_alpha"`
	// SampleStride is the start-position stride used to estimate the expected
	// bias profile in non-final rounds.  The final round always uses 1.
	SampleStride int `yaml:"sample_stride"`
	// Parallelism is the number of shards to process concurrently; 0 means
	// runtime.NumCPU().
	Parallelism int `yaml:"parallelism"`
}

var DefaultOpts = Opts{
	PosBiasCorrect: false,
	MinAlpha:       1e-8,
	SampleStride:   8,
	Parallelism:    0,
}

// Validate checks opts.
func (o Opts) Validate() error {
	if o.MinAlpha < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("efflen: MinAlpha must be >= 0, got %v", o.MinAlpha))
	}
	if o.SampleStride < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("efflen: SampleStride must be >= 1, got %d", o.SampleStride))
	}
	return nil
}

func (o Opts) parallelism(n int) int {
	p := o.Parallelism
	if p <= 0 {
		p = runtime.NumCPU()
	}
	if p > n {
		p = n
	}
	if p < 1 {
		p = 1
	}
	return p
}

// fldTables holds prefix sums over the fragment-length pmf: cdf[l] is the
// mass of lengths <= l and cdfLen[l] the matching sum of p(l')*l'.
type fldTables struct {
	pmf, cdf, cdfLen []float64
}

func newFLDTables(pmf []float64) fldTables {
	t := fldTables{
		pmf:    pmf,
		cdf:    make([]float64, len(pmf)),
		cdfLen: make([]float64, len(pmf)),
	}
	var c, cl float64
	for l, p := range pmf {
		c += p
		cl += p * float64(l)
		t.cdf[l] = c
		t.cdfLen[l] = cl
	}
	return t
}

func (t fldTables) maxLen() int { return len(t.pmf) - 1 }

// upTo returns cdf(min(l, maxLen)).
func (t fldTables) upTo(l int) float64 {
	if l <= 0 {
		return 0
	}
	if m := t.maxLen(); l > m {
		l = m
	}
	return t.cdf[l]
}

// uniformEffLen is the effective length of a transcript of length refLen
// under uniform fragment starts: refLen+1 minus the mean fragment length
// conditioned on fitting in the transcript.
func (t fldTables) uniformEffLen(refLen int) float64 {
	m := refLen
	if m > t.maxLen() {
		m = t.maxLen()
	}
	if m < 1 || t.cdf[m] <= 0 {
		return float64(refLen)
	}
	return float64(refLen+1) - t.cdfLen[m]/t.cdf[m]
}

// biasedEffLen weights every start position s by startWeight(s) and sums
// p(l)/cdf(L) * sum_{s=0}^{L-l} startWeight(s) over fragment lengths l.
// prefix is scratch space that is grown as needed.
func (t fldTables) biasedEffLen(refLen int, startWeight func(s int) float64, prefix []float64) ([]float64, float64) {
	m := refLen
	if m > t.maxLen() {
		m = t.maxLen()
	}
	if m < 1 || t.cdf[m] <= 0 {
		return prefix, float64(refLen)
	}
	if cap(prefix) < refLen+1 {
		prefix = make([]float64, refLen+1)
	}
	prefix = prefix[:refLen+1]
	prefix[0] = 0
	for s := 0; s < refLen; s++ {
		prefix[s+1] = prefix[s] + startWeight(s)
	}
	var eff float64
	for l := 1; l <= m; l++ {
		if t.pmf[l] == 0 {
			continue
		}
		eff += t.pmf[l] * prefix[refLen-l+1]
	}
	return prefix, eff / t.cdf[m]
}

// UpdateEffectiveLengths computes the effective lengths for the next EM
// round from the current abundances.  The returned slice is newly allocated;
// neither effLensIn nor alphas is modified.
//
// In non-final rounds transcripts with alpha < opts.MinAlpha keep their input
// length and the expected bias profile is estimated from every
// opts.SampleStride'th start position.  With finalRound every transcript is
// recomputed at full resolution.
func UpdateEffectiveLengths(opts Opts, exp *Experiment, effLensIn, alphas []float64, finalRound bool) ([]float64, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := len(exp.Transcripts)
	if len(effLensIn) != n || len(alphas) != n {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"efflen: %d transcripts, %d effective lengths, %d abundances", n, len(effLensIn), len(alphas)))
	}
	if exp.FLD == nil {
		return nil, errors.E(errors.Invalid, "efflen: missing fragment length distribution")
	}
	tables := newFLDTables(exp.FLD.PMF())
	stride := opts.SampleStride
	if finalRound {
		stride = 1
	}
	recompute := func(i int) bool {
		return finalRound || alphas[i] >= opts.MinAlpha
	}

	var biasWeights []float64
	if opts.PosBiasCorrect && exp.PosBias != nil {
		if observed := exp.PosBias.Observed(); observed != nil {
			expected := expectedStartProfile(opts, exp, tables, effLensIn, alphas, stride, finalRound)
			biasWeights = make([]float64, len(observed))
			// Weights average to one under the expected profile, so bias
			// correction moves effective length between transcripts without
			// changing the total.
			for b := range biasWeights {
				biasWeights[b] = 1
				if expected[b] > 0 {
					biasWeights[b] = observed[b] / expected[b]
				}
			}
		}
	}

	out := make([]float64, n)
	parallelism := opts.parallelism(n)
	var nRecomputed int64
	counts := make([]int64, parallelism)
	err := traverse.Each(parallelism, func(shard int) error {
		var prefix []float64
		for i := shard * n / parallelism; i < (shard+1)*n/parallelism; i++ {
			if !recompute(i) {
				out[i] = effLensIn[i]
				continue
			}
			counts[shard]++
			refLen := exp.Transcripts[i].RefLength
			var eff float64
			if biasWeights == nil {
				eff = tables.uniformEffLen(refLen)
			} else {
				nBins := len(biasWeights)
				prefix, eff = tables.biasedEffLen(refLen, func(s int) float64 {
					return biasWeights[binOf(s, refLen, nBins)]
				}, prefix)
			}
			if eff < 1 {
				eff = float64(refLen)
			}
			out[i] = eff
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		nRecomputed += c
	}
	log.Debug.Printf("efflen: recomputed %d of %d effective lengths (final=%v, bias=%v)",
		nRecomputed, n, finalRound, biasWeights != nil)
	return out, nil
}

// expectedStartProfile predicts the binned start profile if fragments started
// uniformly along every transcript, weighting each transcript by its
// abundance per unit of effective length.  The result is normalized.
func expectedStartProfile(opts Opts, exp *Experiment, tables fldTables,
	effLens, alphas []float64, stride int, finalRound bool) []float64 {
	nBins := exp.PosBias.NumBins()
	n := len(exp.Transcripts)
	profile := accum.NewMasses(nBins, 0)
	parallelism := opts.parallelism(n)
	_ = traverse.Each(parallelism, func(shard int) error {
		local := make([]float64, nBins)
		for i := shard * n / parallelism; i < (shard+1)*n/parallelism; i++ {
			if alphas[i] <= 0 || effLens[i] <= 0 {
				continue
			}
			if !finalRound && alphas[i] < opts.MinAlpha {
				continue
			}
			refLen := exp.Transcripts[i].RefLength
			w := alphas[i] / effLens[i] * float64(stride)
			for s := 0; s < refLen; s += stride {
				// Starts too close to the end cannot hold any fragment.
				if c := tables.upTo(refLen - s); c > 0 {
					local[binOf(s, refLen, nBins)] += w * c
				}
			}
		}
		for b, v := range local {
			if v != 0 {
				accum.IncLoop(profile.At(b), v)
			}
		}
		return nil
	})
	out := profile.Snapshot()
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for b := range out {
			out[b] /= total
		}
	}
	return out
}
