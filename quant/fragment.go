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

import "github.com/grailbio/rnaquant/libformat"

// Hit is one alignment of a fragment to a transcript, as reported by the
// aligner.
type Hit struct {
	TranscriptID int32
	// Format is the observed library format.  Only meaningful when
	// MateStatus is MatePairedEndPaired.
	Format libformat.LibraryFormat
	// Start and IsForward describe the mate that was aligned; for paired
	// hits, the leftmost mate.
	Start      int32
	IsForward  bool
	MateStatus libformat.MateStatus
	// FragLen is the fragment length of a paired hit, 0 if unknown.
	FragLen int32
	// LogAlignScore is an extra log-likelihood term for the alignment, 0 if
	// the aligner provides none.
	LogAlignScore float64
}

// Fragment is a read or read pair with all of its alignments.
type Fragment struct {
	Name        string
	MappingType libformat.MappingType
	Hits        []Hit
}
