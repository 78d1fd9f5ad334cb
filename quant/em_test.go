package quant

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/rnaquant/efflen"
	"github.com/grailbio/rnaquant/libformat"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpts() Opts {
	opts := DefaultOpts
	opts.LibFormat = "ISF"
	opts.MinIter = 100
	opts.MaxIter = 5000
	opts.RelDiffTolerance = 1e-8
	opts.EffLenUpdateEvery = 25
	opts.Parallelism = 4
	return opts
}

// pairedHit is a compatible ISF pair on transcript tid.
func pairedHit(tid int32, start int32) Hit {
	return Hit{
		TranscriptID: tid,
		Format:       libformat.HitTypePaired(start, true, start+150, false),
		Start:        start,
		IsForward:    true,
		MateStatus:   libformat.MatePairedEndPaired,
		FragLen:      250,
	}
}

func fragments(name string, n int, mt libformat.MappingType, hits func(i int) []Hit) []Fragment {
	out := make([]Fragment, n)
	for i := range out {
		out[i] = Fragment{Name: fmt.Sprintf("%s%d", name, i), MappingType: mt, Hits: hits(i)}
	}
	return out
}

func TestRunSplitsAmbiguousFragments(t *testing.T) {
	transcripts := []efflen.Transcript{{Name: "A", RefLength: 2000}, {Name: "B", RefLength: 2000}, {Name: "C", RefLength: 1000}}
	var frags []Fragment
	frags = append(frags, fragments("a", 600, libformat.PairedMapped, func(i int) []Hit {
		return []Hit{pairedHit(0, int32(i%1500))}
	})...)
	frags = append(frags, fragments("b", 200, libformat.PairedMapped, func(i int) []Hit {
		return []Hit{pairedHit(1, int32(i%1500))}
	})...)
	frags = append(frags, fragments("ab", 300, libformat.PairedMapped, func(i int) []Hit {
		return []Hit{pairedHit(0, 100), pairedHit(1, 100)}
	})...)
	frags = append(frags, Fragment{Name: "unmapped", MappingType: libformat.Unmapped})

	res, err := Run(context.Background(), testOpts(), transcripts, frags)
	require.NoError(t, err)
	expect.True(t, res.Converged)
	require.Len(t, res.Alphas, 3)
	// The ambiguous fragments split 3:1 like the unique ones.
	assert.InDelta(t, 825, res.Alphas[0], 0.5)
	assert.InDelta(t, 275, res.Alphas[1], 0.5)
	assert.InDelta(t, 0, res.Alphas[2], 1e-6)
	assert.InDelta(t, 1100, res.Alphas[0]+res.Alphas[1]+res.Alphas[2], 1e-6)

	var tpmTotal float64
	for _, v := range res.TPM {
		tpmTotal += v
	}
	assert.InDelta(t, 1e6, tpmTotal, 1e-3)
	assert.InDelta(t, res.EffLens[0], res.EffLens[1], 1e-9)
	for i, e := range res.EffLens {
		assert.True(t, e >= 1 && e <= float64(transcripts[i].RefLength), "%v", res.EffLens)
	}

	s := res.Stats
	expect.EQ(t, s.Fragments, int64(1101))
	expect.EQ(t, s.Hits, int64(1400))
	expect.EQ(t, s.CompatibleHits, int64(1400))
	expect.EQ(t, s.IncompatibleHits, int64(0))
	expect.EQ(t, s.DroppedFragments, int64(0))
	expect.EQ(t, s.FLDObservations, int64(800))
	expect.EQ(t, s.MappingTypes[libformat.PairedMapped], int64(1100))
	expect.EQ(t, s.MappingTypes[libformat.Unmapped], int64(1))
	expect.EQ(t, s.FormatCounts[libformat.MustParse("ISF")], int64(800))
	// The learned distribution is dominated by the 250bp observations.
	assert.InDelta(t, 250, res.FLDMean, 1)
}

func TestRunDownWeightsIncompatibleAlignments(t *testing.T) {
	transcripts := []efflen.Transcript{{Name: "fwd", RefLength: 1000}, {Name: "rev", RefLength: 1000}}
	// Each fragment aligns as ISF to "fwd" and as ISR to "rev".
	frags := fragments("f", 100, libformat.PairedMapped, func(i int) []Hit {
		wrong := pairedHit(1, 10)
		wrong.Format = libformat.HitTypePaired(160, false, 10, true)
		return []Hit{pairedHit(0, 10), wrong}
	})
	opts := testOpts()
	opts.IncompatPrior = 1e-5
	res, err := Run(context.Background(), opts, transcripts, frags)
	require.NoError(t, err)
	assert.InDelta(t, 100, res.Alphas[0], 0.01)
	assert.True(t, res.Alphas[1] < 0.01, "%v", res.Alphas)
	expect.EQ(t, res.Stats.CompatibleHits, int64(100))
	expect.EQ(t, res.Stats.IncompatibleHits, int64(100))
}

func TestRunHardFilteringDropsFragments(t *testing.T) {
	transcripts := []efflen.Transcript{{Name: "t", RefLength: 1000}}
	frags := []Fragment{
		{Name: "good", MappingType: libformat.PairedMapped, Hits: []Hit{pairedHit(0, 10)}},
		{Name: "orphan-bad", MappingType: libformat.LeftOrphan, Hits: []Hit{{
			TranscriptID: 0, Start: 10, IsForward: false, MateStatus: libformat.MatePairedEndLeft,
		}}},
		{Name: "orphan-good", MappingType: libformat.RightOrphan, Hits: []Hit{{
			TranscriptID: 0, Start: 300, IsForward: false, MateStatus: libformat.MatePairedEndRight,
		}}},
	}
	opts := testOpts()
	opts.IncompatPrior = 0
	res, err := Run(context.Background(), opts, transcripts, frags)
	require.NoError(t, err)
	expect.EQ(t, res.Stats.DroppedFragments, int64(1))
	assert.InDelta(t, 2, res.Alphas[0], 1e-9)
	expect.EQ(t, res.Stats.FormatCounts[libformat.New(libformat.PairedEnd, libformat.None, libformat.Sense)], int64(1))
	expect.EQ(t, res.Stats.FormatCounts[libformat.New(libformat.PairedEnd, libformat.None, libformat.Antisense)], int64(1))
}

func TestRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	transcripts := []efflen.Transcript{{Name: "t", RefLength: 1000}}

	opts := testOpts()
	opts.IncompatPrior = 1.5
	_, err := Run(ctx, opts, transcripts, nil)
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Invalid, err))

	opts = testOpts()
	opts.LibFormat = "XYZ"
	_, err = Run(ctx, opts, transcripts, nil)
	require.Error(t, err)

	_, err = Run(ctx, testOpts(), transcripts, []Fragment{{Name: "x", Hits: []Hit{pairedHit(3, 0)}}})
	require.Error(t, err)

	_, err = Run(ctx, testOpts(), []efflen.Transcript{{Name: "empty", RefLength: 0}}, nil)
	require.Error(t, err)

	_, err = Run(ctx, testOpts(), nil, nil)
	require.Error(t, err)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testOpts(), []efflen.Transcript{{Name: "t", RefLength: 1000}},
		[]Fragment{{Name: "f", Hits: []Hit{pairedHit(0, 1)}}})
	require.Error(t, err)
}

func TestStatsMerge(t *testing.T) {
	a := Stats{Fragments: 2, Hits: 3, CompatibleHits: 1}
	a.MappingTypes[libformat.PairedMapped] = 2
	a.addFormat(libformat.MustParse("ISR"))
	b := Stats{Fragments: 1, Hits: 1, IncompatibleHits: 1, DroppedFragments: 1}
	b.MappingTypes[libformat.SingleMapped] = 1
	b.addFormat(libformat.MustParse("ISR"))
	b.addFormat(libformat.MustParse("SF"))

	m := a.Merge(b)
	expect.EQ(t, m.Fragments, int64(3))
	expect.EQ(t, m.Hits, int64(4))
	expect.EQ(t, m.CompatibleHits, int64(1))
	expect.EQ(t, m.IncompatibleHits, int64(1))
	expect.EQ(t, m.DroppedFragments, int64(1))
	expect.EQ(t, m.MappingTypes[libformat.PairedMapped], int64(2))
	expect.EQ(t, m.MappingTypes[libformat.SingleMapped], int64(1))
	expect.EQ(t, m.FormatCounts[libformat.MustParse("ISR")], int64(2))
	expect.EQ(t, m.FormatCounts[libformat.MustParse("SF")], int64(1))
	// Inputs are untouched.
	expect.EQ(t, a.FormatCounts[libformat.MustParse("ISR")], int64(1))
	expect.EQ(t, len(b.FormatCounts), 2)
}

func TestTPM(t *testing.T) {
	got := tpm([]float64{10, 30, 0}, []float64{100, 100, 50})
	assert.InDelta(t, 250000, got[0], 1e-6)
	assert.InDelta(t, 750000, got[1], 1e-6)
	expect.EQ(t, got[2], 0.0)
	expect.EQ(t, tpm([]float64{0}, []float64{1}), []float64{0})
	assert.False(t, math.IsNaN(tpm([]float64{1}, []float64{0})[0]))
}
