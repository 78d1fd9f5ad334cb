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

// Package libformat models sequencing-library protocols (pairing, relative
// mate orientation, strandedness), classifies observed alignments into a
// protocol and scores them against the protocol a library is expected to have.
package libformat

// ReadType says whether a library is single or paired end.
type ReadType uint8

const (
	SingleEnd ReadType = iota
	PairedEnd
)

// Orientation is the relative orientation of the two mates of a pair.
type Orientation uint8

const (
	// None means unspecified.  Single-end formats always use it, and an
	// expected format with None accepts any observed orientation.
	None Orientation = iota
	// Same: both mates align to the same strand ("M").
	Same
	// Away: the mates face away from each other ("O").
	Away
	// Toward: the mates face each other ("I").
	Toward
	// Dovetail: the mates face each other but have slid past one another.
	// Only produced by HitTypePairedDovetail when dovetailing is disallowed;
	// it never matches an expected protocol other than one with None.
	Dovetail
)

// Strandedness says which strand read 1 of a fragment comes from.
type Strandedness uint8

const (
	// Unstranded ("U") accepts either strand.
	Unstranded Strandedness = iota
	// Sense ("F"): read 1 comes from the transcript strand.
	Sense
	// Antisense ("R"): read 1 comes from the opposite strand.
	Antisense
)

// LibraryFormat describes a sequencing protocol.  Every axis always holds a
// value; None and Unstranded are explicit values, not absences.
type LibraryFormat struct {
	Type         ReadType
	Orientation  Orientation
	Strandedness Strandedness
}

// New creates a LibraryFormat.
func New(t ReadType, o Orientation, s Strandedness) LibraryFormat {
	return LibraryFormat{Type: t, Orientation: o, Strandedness: s}
}

func (t ReadType) String() string {
	if t == PairedEnd {
		return "paired_end"
	}
	return "single_end"
}

func (o Orientation) String() string {
	switch o {
	case Same:
		return "M"
	case Away:
		return "O"
	case Toward:
		return "I"
	case Dovetail:
		return "D"
	}
	return ""
}

func (s Strandedness) String() string {
	switch s {
	case Sense:
		return "SF"
	case Antisense:
		return "SR"
	}
	return "U"
}

// String returns the protocol code, e.g. "ISF", "IU", "MSR", "SF" or "U".
func (f LibraryFormat) String() string {
	if f.Type == SingleEnd {
		return f.Strandedness.String()
	}
	return f.Orientation.String() + f.Strandedness.String()
}

// IsPaired reports whether f is a paired-end format.
func (f LibraryFormat) IsPaired() bool { return f.Type == PairedEnd }
