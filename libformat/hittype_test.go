package libformat

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
)

func TestHitTypePaired(t *testing.T) {
	tests := []struct {
		end1Start int32
		end1Fwd   bool
		end2Start int32
		end2Fwd   bool
		want      string
	}{
		{100, true, 300, false, "ISF"},
		{300, false, 100, true, "ISR"},
		{300, true, 100, false, "OSF"},
		{100, false, 300, true, "OSR"},
		{100, true, 300, true, "MSF"},
		{300, false, 100, false, "MSR"},
		// Ties: the forward mate counts as upstream.
		{200, true, 200, false, "ISF"},
		{200, false, 200, true, "ISR"},
		{200, true, 200, true, "MSF"},
	}
	for _, test := range tests {
		got := HitTypePaired(test.end1Start, test.end1Fwd, test.end2Start, test.end2Fwd)
		expect.EQ(t, got.Type, PairedEnd)
		expect.EQ(t, got, MustParse(test.want), "%+v", test)
	}
}

// Swapping which mate is read 1 must keep the orientation and only flip which
// mate the strandedness is recorded for.
func TestHitTypePairedMateSwap(t *testing.T) {
	coords := []int32{0, 50, 100, 150}
	for _, s1 := range coords {
		for _, s2 := range coords {
			for _, f1 := range []bool{true, false} {
				for _, f2 := range []bool{true, false} {
					a := HitTypePaired(s1, f1, s2, f2)
					b := HitTypePaired(s2, f2, s1, f1)
					expect.EQ(t, a.Type, PairedEnd)
					expect.EQ(t, a.Orientation, b.Orientation, "%d %v %d %v", s1, f1, s2, f2)
					if f1 == f2 {
						expect.EQ(t, a.Strandedness, b.Strandedness)
					} else {
						expect.NEQ(t, a.Strandedness, b.Strandedness)
					}
					// Deterministic.
					expect.EQ(t, a, HitTypePaired(s1, f1, s2, f2))

					c := HitTypePairedDovetail(s1, f1, 30, s2, f2, 70, false)
					d := HitTypePairedDovetail(s2, f2, 70, s1, f1, 30, false)
					expect.EQ(t, c.Orientation, d.Orientation)
				}
			}
		}
	}
}

func TestHitTypePairedDovetail(t *testing.T) {
	tests := []struct {
		end1Start   int32
		end1Fwd     bool
		len1        uint32
		end2Start   int32
		end2Fwd     bool
		len2        uint32
		canDovetail bool
		want        LibraryFormat
	}{
		// Ordinary inward pair.
		{100, true, 50, 300, false, 50, false, New(PairedEnd, Toward, Sense)},
		// Reverse mate at [100,150), forward mate starts at 120: dovetailed.
		{120, true, 50, 100, false, 50, true, New(PairedEnd, Toward, Sense)},
		{120, true, 50, 100, false, 50, false, New(PairedEnd, Dovetail, Sense)},
		{100, false, 50, 150, true, 50, false, New(PairedEnd, Dovetail, Antisense)},
		// Forward mate starts past the reverse mate's end: outward.
		{151, true, 50, 100, false, 50, true, New(PairedEnd, Away, Sense)},
		{151, true, 50, 100, false, 50, false, New(PairedEnd, Away, Sense)},
		// Same strand is unaffected by lengths.
		{120, false, 50, 100, false, 50, false, New(PairedEnd, Same, Antisense)},
	}
	for _, test := range tests {
		got := HitTypePairedDovetail(test.end1Start, test.end1Fwd, test.len1,
			test.end2Start, test.end2Fwd, test.len2, test.canDovetail)
		assert.Equal(t, test.want, got, "%+v", test)
	}
	// Without lengths the dovetail case degrades to outward.
	expect.EQ(t, HitTypePaired(120, true, 100, false), New(PairedEnd, Away, Sense))
}

func TestHitTypeSingle(t *testing.T) {
	expect.EQ(t, HitTypeSingle(10, true), New(SingleEnd, None, Sense))
	expect.EQ(t, HitTypeSingle(10, false), New(SingleEnd, None, Antisense))
	expect.EQ(t, HitTypeSingle(0, true).String(), "SF")
}

// Every orientation category is reachable from a concrete geometry, and the
// direction of read 1 determines the strandedness that is reported.
func TestOrientationCategoriesReachable(t *testing.T) {
	type geom struct {
		s1     int32
		fwd1   bool
		l1     uint32
		s2     int32
		fwd2   bool
		l2     uint32
		dove   bool
		paired bool
	}
	cases := map[Orientation]geom{
		Toward:   {100, true, 50, 300, false, 50, true, true},
		Away:     {300, true, 50, 100, false, 50, true, true},
		Same:     {100, true, 50, 300, true, 50, true, true},
		Dovetail: {120, true, 50, 100, false, 50, false, true},
		None:     {100, true, 50, 0, false, 0, false, false},
	}
	for want, g := range cases {
		var got LibraryFormat
		if g.paired {
			got = HitTypePairedDovetail(g.s1, g.fwd1, g.l1, g.s2, g.fwd2, g.l2, g.dove)
		} else {
			got = HitTypeSingle(g.s1, g.fwd1)
		}
		expect.EQ(t, got.Orientation, want)
		wantStrand := Antisense
		if BoolToDirection(g.fwd1) == Forward {
			wantStrand = Sense
		}
		expect.EQ(t, got.Strandedness, wantStrand)
	}
	// Canned geometry from the documentation: read 1 at 100 forward, read 2 at
	// 300 reverse faces inward and matches an unstranded inward library.
	got := HitTypePaired(100, true, 300, false)
	expect.EQ(t, got.Orientation, Toward)
	expect.True(t, CompatibleHit(MustParse("IU"), got))
}

func TestBoolToDirection(t *testing.T) {
	expect.EQ(t, BoolToDirection(true), Forward)
	expect.EQ(t, BoolToDirection(false), ReverseComplement)
	expect.EQ(t, Reverse.String(), "reverse")
}
