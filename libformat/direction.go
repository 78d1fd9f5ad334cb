package libformat

import "fmt"

// Direction is the orientation of a sequence relative to the reference.
//
// Reverse is a composite state: it describes a sequence that is reversed but
// not complemented, which only arises when orientations are composed.  A
// single strand flag can only be Forward or ReverseComplement, which is why
// BoolToDirection never returns Reverse.  Keep the two notions apart instead
// of folding Direction into a bool.
type Direction uint8

const (
	Forward Direction = iota
	ReverseComplement
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case ReverseComplement:
		return "reverse_complement"
	case Reverse:
		return "reverse"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// BoolToDirection returns Forward if isFwd and ReverseComplement otherwise.
func BoolToDirection(isFwd bool) Direction {
	if isFwd {
		return Forward
	}
	return ReverseComplement
}

// MappingType records how a read or read pair mapped.
type MappingType uint8

const (
	Unmapped MappingType = iota
	LeftOrphan
	RightOrphan
	BothOrphan
	PairedMapped
	SingleMapped
)

func (m MappingType) String() string {
	switch m {
	case Unmapped:
		return "u"
	case LeftOrphan:
		return "m1"
	case RightOrphan:
		return "m2"
	case BothOrphan:
		return "m12"
	case PairedMapped:
		return "mp"
	case SingleMapped:
		return "ms"
	}
	return fmt.Sprintf("MappingType(%d)", uint8(m))
}

// OrphanStatus records which mates contributed to an alignment.
type OrphanStatus uint8

const (
	LeftOrphanStatus OrphanStatus = iota
	RightOrphanStatus
	PairedStatus
)

func (s OrphanStatus) String() string {
	switch s {
	case LeftOrphanStatus:
		return "left_orphan"
	case RightOrphanStatus:
		return "right_orphan"
	case PairedStatus:
		return "paired"
	}
	return fmt.Sprintf("OrphanStatus(%d)", uint8(s))
}

// MateStatus is the mate evidence carried by a single alignment.
type MateStatus uint8

const (
	MateSingleEnd MateStatus = iota
	MatePairedEndLeft
	MatePairedEndRight
	MatePairedEndPaired
)

func (ms MateStatus) String() string {
	switch ms {
	case MateSingleEnd:
		return "single_end"
	case MatePairedEndLeft:
		return "paired_end_left"
	case MatePairedEndRight:
		return "paired_end_right"
	case MatePairedEndPaired:
		return "paired_end_paired"
	}
	return fmt.Sprintf("MateStatus(%d)", uint8(ms))
}

// OrphanStatus returns the orphan status implied by ms.  Single-end
// alignments are reported as left orphans, since the only read is read 1.
func (ms MateStatus) OrphanStatus() OrphanStatus {
	switch ms {
	case MatePairedEndRight:
		return RightOrphanStatus
	case MatePairedEndPaired:
		return PairedStatus
	}
	return LeftOrphanStatus
}
