package libformat

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/rnaquant/logspace"
)

// CompatibleHit reports whether an observed format satisfies the expected
// one.  Pairing modes must agree.  Orientations must agree unless expected
// has None.  Strandedness must agree unless expected is Unstranded.
func CompatibleHit(expected, observed LibraryFormat) bool {
	if expected.Type != observed.Type {
		return false
	}
	if expected.Orientation != None && expected.Orientation != observed.Orientation {
		return false
	}
	return expected.Strandedness == Unstranded || expected.Strandedness == observed.Strandedness
}

// CompatibleMate reports whether a single mate aligned at start on the given
// strand can belong to a fragment of the expected format.  It is used for
// single-end reads and orphans, where the orientation of the pair cannot be
// observed.
//
// A left mate is read 1, so its strand gives the strandedness directly.  A
// right mate is read 2: it shares read 1's strand when the expected mates
// align to the same strand and has the opposite strand otherwise.
// MatePairedEndPaired is never accepted here; use CompatibleHit.
func CompatibleMate(expected LibraryFormat, start int32, isForward bool, ms MateStatus) bool {
	var read1Fwd bool
	switch ms {
	case MateSingleEnd:
		if expected.Type != SingleEnd {
			return false
		}
		read1Fwd = isForward
	case MatePairedEndLeft:
		if expected.Type != PairedEnd {
			return false
		}
		read1Fwd = isForward
	case MatePairedEndRight:
		if expected.Type != PairedEnd {
			return false
		}
		if expected.Orientation == Same {
			read1Fwd = isForward
		} else {
			read1Fwd = !isForward
		}
	default:
		return false
	}
	switch expected.Strandedness {
	case Sense:
		return read1Fwd
	case Antisense:
		return !read1Fwd
	}
	return true
}

// LogAlignFormatProb returns the log probability that an alignment with the
// given evidence came from a library of the expected format: LogOne when it is
// compatible and log(incompatPrior) otherwise.  Incompatible alignments are
// down-weighted rather than discarded; an incompatPrior of 0 turns this into
// hard filtering (LogZero).
//
// Paired alignments (ms == MatePairedEndPaired) are judged on observed.
// Everything else is judged on the single mate at start/isForward.
func LogAlignFormatProb(observed, expected LibraryFormat, start int32, isForward bool,
	ms MateStatus, incompatPrior float64) float64 {
	var compat bool
	if ms == MatePairedEndPaired {
		compat = CompatibleHit(expected, observed)
	} else {
		compat = CompatibleMate(expected, start, isForward, ms)
	}
	if compat {
		return logspace.LogOne
	}
	return math.Log(incompatPrior)
}

// ValidateIncompatPrior checks that p is usable as an incompatibility prior.
// It must be checked once at configuration time, never per read.
func ValidateIncompatPrior(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("incompatibility prior must be in [0, 1], got %v", p))
	}
	return nil
}
