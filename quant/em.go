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

package quant

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/rnaquant/accum"
	"github.com/grailbio/rnaquant/efflen"
	"github.com/grailbio/rnaquant/libformat"
	"github.com/grailbio/rnaquant/logspace"
)

// Result is the outcome of Run.  All slices are indexed by transcript.
type Result struct {
	Transcripts []efflen.Transcript
	// ExpectedFormat is the library format the run was scored against.
	ExpectedFormat libformat.LibraryFormat
	EffLens        []float64
	// Alphas is the estimated number of fragments from each transcript.
	Alphas []float64
	TPM    []float64
	// Iterations is the number of EM rounds run.
	Iterations int
	Converged  bool
	// FLDMean is the mean of the learned fragment length distribution.
	FLDMean float64
	Stats   Stats
}

// Problem:
// Given every alignment of every fragment, estimate how many fragments came
// from each transcript.
//
// Implementation strategy:
// 1. One parallel pass over the fragments tallies Stats and teaches the
//    fragment length distribution and the positional bias profile from
//    uniquely mapped, format-compatible fragments.
// 2. A second pass turns each alignment into a constant log weight: the
//    library-format probability, the fragment length probability and the
//    aligner's score.
// 3. EM rounds.  Fragment shards are scored concurrently and each fragment's
//    posterior is folded into one accum cell per transcript.  traverse.Each
//    returning is the barrier between the accumulation phase and reading the
//    masses back.  Effective lengths are refreshed every EffLenUpdateEvery
//    rounds, and once more at full precision when EM stops.

// Run estimates transcript abundances from frags.
func Run(ctx context.Context, opts Opts, transcripts []efflen.Transcript, frags []Fragment) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	expected, err := libformat.ParseLibraryFormat(opts.LibFormat)
	if err != nil {
		return nil, err
	}
	n := len(transcripts)
	if n == 0 {
		return nil, errors.E(errors.Invalid, "quant: no transcripts")
	}
	for _, t := range transcripts {
		if t.RefLength < 1 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("quant: transcript %s has length %d", t.Name, t.RefLength))
		}
	}
	for _, frag := range frags {
		for _, h := range frag.Hits {
			if h.TranscriptID < 0 || int(h.TranscriptID) >= n {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("quant: fragment %s: transcript id %d out of range [0, %d)",
					frag.Name, h.TranscriptID, n))
			}
		}
	}
	q := &quantifier{
		opts:     opts,
		expected: expected,
		frags:    frags,
		exp: &efflen.Experiment{
			Transcripts: transcripts,
			FLD:         efflen.NewFragLengthDist(opts.FLDMean, opts.FLDSD, opts.FLDMax, opts.FLDPriorMass),
			PosBias:     efflen.NewPosBias(opts.PosBiasBins),
		},
	}
	q.parallelism = opts.Parallelism
	if q.parallelism <= 0 {
		q.parallelism = runtime.NumCPU()
	}
	if q.parallelism > len(frags) {
		q.parallelism = len(frags)
	}
	if q.parallelism < 1 {
		q.parallelism = 1
	}

	stats, err := q.observe()
	if err != nil {
		return nil, err
	}
	log.Printf("quant: %d fragments, %d alignments (%d compatible with %v, %d not)",
		stats.Fragments, stats.Hits, stats.CompatibleHits, expected, stats.IncompatibleHits)
	if stats.Hits > 0 && stats.CompatibleHits*20 < stats.Hits {
		log.Error.Printf("quant: only %d of %d alignments are compatible with library format %v; check -libtype",
			stats.CompatibleHits, stats.Hits, expected)
	}
	dropped, err := q.scoreHits()
	if err != nil {
		return nil, err
	}
	stats.DroppedFragments = dropped

	res, err := q.em(ctx)
	if err != nil {
		return nil, err
	}
	res.Stats = stats
	return res, nil
}

type quantifier struct {
	opts        Opts
	expected    libformat.LibraryFormat
	frags       []Fragment
	exp         *efflen.Experiment
	parallelism int
	// logConst[i][j] is the abundance-independent log weight of
	// frags[i].Hits[j].
	logConst [][]float64
}

func (q *quantifier) shardRange(shard int) (int, int) {
	n := len(q.frags)
	return shard * n / q.parallelism, (shard + 1) * n / q.parallelism
}

func (q *quantifier) compatible(h *Hit) bool {
	if h.MateStatus == libformat.MatePairedEndPaired {
		return libformat.CompatibleHit(q.expected, h.Format)
	}
	return libformat.CompatibleMate(q.expected, h.Start, h.IsForward, h.MateStatus)
}

func (q *quantifier) logFormatProb(h *Hit) float64 {
	return libformat.LogAlignFormatProb(h.Format, q.expected, h.Start, h.IsForward, h.MateStatus, q.opts.IncompatPrior)
}

// observe tallies Stats and feeds the fragment length distribution and the
// positional bias profile.
func (q *quantifier) observe() (Stats, error) {
	shardStats := make([]Stats, q.parallelism)
	err := traverse.Each(q.parallelism, func(shard int) error {
		stats := &shardStats[shard]
		start, limit := q.shardRange(shard)
		for i := start; i < limit; i++ {
			frag := &q.frags[i]
			stats.Fragments++
			if int(frag.MappingType) < numMappingTypes {
				stats.MappingTypes[frag.MappingType]++
			}
			for j := range frag.Hits {
				stats.Hits++
				if q.compatible(&frag.Hits[j]) {
					stats.CompatibleHits++
				} else {
					stats.IncompatibleHits++
				}
			}
			if len(frag.Hits) != 1 {
				continue
			}
			h := &frag.Hits[0]
			if h.MateStatus == libformat.MatePairedEndPaired {
				stats.addFormat(h.Format)
			} else {
				stats.addFormat(observedMateFormat(h))
			}
			if !q.compatible(h) {
				continue
			}
			refLen := q.exp.Transcripts[h.TranscriptID].RefLength
			q.exp.PosBias.AddObservation(int(h.Start), refLen, logspace.LogOne)
			if h.MateStatus == libformat.MatePairedEndPaired && h.FragLen > 0 {
				if q.exp.FLD.AddObservation(int(h.FragLen), logspace.LogOne) {
					stats.FLDObservations++
				}
			}
		}
		return nil
	})
	var total Stats
	for _, s := range shardStats {
		total = total.Merge(s)
	}
	return total, err
}

// observedMateFormat is the format an orphan or single-end read reports
// about itself: its own strand, with read 1's perspective for right mates.
func observedMateFormat(h *Hit) libformat.LibraryFormat {
	f := libformat.HitTypeSingle(h.Start, h.IsForward)
	if h.MateStatus != libformat.MateSingleEnd {
		f.Type = libformat.PairedEnd
	}
	if h.MateStatus == libformat.MatePairedEndRight {
		if f.Strandedness == libformat.Sense {
			f.Strandedness = libformat.Antisense
		} else {
			f.Strandedness = libformat.Sense
		}
	}
	return f
}

// scoreHits fills q.logConst.  It returns the number of mapped fragments
// whose alignments all have zero probability.
func (q *quantifier) scoreHits() (int64, error) {
	fldLog := q.exp.FLD.LogPMFs()
	maxLen := int32(q.exp.FLD.MaxLen())
	q.logConst = make([][]float64, len(q.frags))
	dropped := make([]int64, q.parallelism)
	err := traverse.Each(q.parallelism, func(shard int) error {
		start, limit := q.shardRange(shard)
		for i := start; i < limit; i++ {
			frag := &q.frags[i]
			if len(frag.Hits) == 0 {
				continue
			}
			w := make([]float64, len(frag.Hits))
			anyMass := false
			for j := range frag.Hits {
				h := &frag.Hits[j]
				lw := q.logFormatProb(h) + h.LogAlignScore
				if h.MateStatus == libformat.MatePairedEndPaired && h.FragLen > 0 {
					fl := h.FragLen
					if fl > maxLen {
						fl = maxLen
					}
					lw += fldLog[fl]
				}
				if math.IsNaN(lw) {
					lw = logspace.LogZero
				}
				w[j] = lw
				if !logspace.IsZero(lw) {
					anyMass = true
				}
			}
			if !anyMass {
				dropped[shard]++
			}
			q.logConst[i] = w
		}
		return nil
	})
	var total int64
	for _, d := range dropped {
		total += d
	}
	return total, err
}

// initialEffLens computes effective lengths from the fragment length
// distribution alone.
func (q *quantifier) initialEffLens() ([]float64, error) {
	n := len(q.exp.Transcripts)
	lens := make([]float64, n)
	ones := make([]float64, n)
	for i, t := range q.exp.Transcripts {
		lens[i] = float64(t.RefLength)
		ones[i] = 1
	}
	opts := q.opts.EffLen
	opts.PosBiasCorrect = false
	return efflen.UpdateEffectiveLengths(opts, q.exp, lens, ones, true)
}

// eStep folds every fragment's posterior over its alignments into masses.
func (q *quantifier) eStep(masses *accum.Masses, logAlphas, logEffLens []float64) error {
	masses.Reset(0)
	return traverse.Each(q.parallelism, func(shard int) error {
		start, limit := q.shardRange(shard)
		var scratch []float64
		for i := start; i < limit; i++ {
			hits := q.frags[i].Hits
			if len(hits) == 0 {
				continue
			}
			scratch = scratch[:0]
			for j := range hits {
				t := hits[j].TranscriptID
				scratch = append(scratch, logAlphas[t]-logEffLens[t]+q.logConst[i][j])
			}
			denom := logspace.SumExp(scratch)
			if logspace.IsZero(denom) || math.IsNaN(denom) {
				continue
			}
			for j := range hits {
				if logspace.IsZero(scratch[j]) {
					continue
				}
				accum.IncLoop(masses.At(int(hits[j].TranscriptID)), math.Exp(scratch[j]-denom))
			}
		}
		return nil
	})
}

func logs(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Log(x)
	}
	return out
}

// converged reports whether every transcript above the cutoff moved by less
// than the tolerance.
func (q *quantifier) converged(prev, next []float64) bool {
	for i := range next {
		if next[i] <= q.opts.AlphaCheckCutoff {
			continue
		}
		if math.Abs(next[i]-prev[i])/next[i] > q.opts.RelDiffTolerance {
			return false
		}
	}
	return true
}

func (q *quantifier) em(ctx context.Context) (*Result, error) {
	n := len(q.exp.Transcripts)
	effLens, err := q.initialEffLens()
	if err != nil {
		return nil, err
	}
	// Start from a uniform split of the fragments.
	alphas := make([]float64, n)
	for i := range alphas {
		alphas[i] = float64(len(q.frags)) / float64(n)
		if alphas[i] == 0 {
			alphas[i] = 1
		}
	}
	masses := accum.NewMasses(n, 0)
	res := &Result{Transcripts: q.exp.Transcripts, ExpectedFormat: q.expected}
	for it := 0; it < q.opts.MaxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := q.eStep(masses, logs(alphas), logs(effLens)); err != nil {
			return nil, err
		}
		next := masses.Snapshot()
		res.Iterations = it + 1
		done := it+1 >= q.opts.MinIter && q.converged(alphas, next)
		alphas = next
		if it%100 == 0 {
			log.Printf("quant: EM round %d", it)
		}
		if done {
			res.Converged = true
			break
		}
		if every := q.opts.EffLenUpdateEvery; every > 0 && (it+1)%every == 0 {
			if effLens, err = efflen.UpdateEffectiveLengths(q.opts.EffLen, q.exp, effLens, alphas, false); err != nil {
				return nil, err
			}
		}
	}
	if !res.Converged {
		log.Printf("quant: EM stopped after %d rounds without converging", res.Iterations)
	} else {
		log.Printf("quant: EM converged after %d rounds", res.Iterations)
	}
	if effLens, err = efflen.UpdateEffectiveLengths(q.opts.EffLen, q.exp, effLens, alphas, true); err != nil {
		return nil, err
	}
	res.EffLens = effLens
	res.Alphas = alphas
	res.TPM = tpm(alphas, effLens)
	res.FLDMean = q.exp.FLD.Mean()
	return res, nil
}

// tpm converts abundances to transcripts per million.
func tpm(alphas, effLens []float64) []float64 {
	out := make([]float64, len(alphas))
	var total float64
	for i := range alphas {
		if effLens[i] > 0 {
			out[i] = alphas[i] / effLens[i]
			total += out[i]
		}
	}
	if total == 0 {
		return out
	}
	for i := range out {
		out[i] *= 1e6 / total
	}
	return out
}
