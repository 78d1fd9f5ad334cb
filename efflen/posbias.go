package efflen

import (
	"math"

	"github.com/grailbio/rnaquant/accum"
	"github.com/grailbio/rnaquant/logspace"
)

// PosBias collects where fragments start along transcripts.  Positions are
// binned by their fraction of the transcript length, so transcripts of
// different lengths share one profile.
type PosBias struct {
	bins []accum.Float64 // log mass
}

// DefaultNumBins is the profile resolution used when none is configured.
const DefaultNumBins = 20

// NewPosBias creates an empty profile with numBins bins.
func NewPosBias(numBins int) *PosBias {
	if numBins < 1 {
		numBins = DefaultNumBins
	}
	b := &PosBias{bins: make([]accum.Float64, numBins)}
	for i := range b.bins {
		b.bins[i].Store(logspace.LogZero)
	}
	return b
}

// NumBins returns the profile resolution.
func (b *PosBias) NumBins() int { return len(b.bins) }

func binOf(pos, refLen, numBins int) int {
	if refLen <= 0 || pos <= 0 {
		return 0
	}
	bin := int(int64(pos) * int64(numBins) / int64(refLen))
	if bin >= numBins {
		bin = numBins - 1
	}
	return bin
}

// AddObservation records exp(logMass) worth of fragments starting at pos on
// a transcript of length refLen.  Safe for concurrent use.
func (b *PosBias) AddObservation(pos, refLen int, logMass float64) {
	accum.IncLoopLog(&b.bins[binOf(pos, refLen, len(b.bins))], logMass)
}

// Observed returns the normalized start profile, or nil if nothing was
// observed.
func (b *PosBias) Observed() []float64 {
	logs := make([]float64, len(b.bins))
	for i := range b.bins {
		logs[i] = b.bins[i].Load()
	}
	total := logspace.SumExp(logs)
	if logspace.IsZero(total) {
		return nil
	}
	out := make([]float64, len(logs))
	for i, v := range logs {
		out[i] = math.Exp(v - total)
	}
	return out
}
