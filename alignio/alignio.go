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

// Package alignio turns transcriptome alignments into quant.Fragments.
//
// The input is a BAM whose references are transcripts and whose records are
// grouped by read name, which is what aligners emit when writing to a
// transcriptome (they are not coordinate sorted).  Every name group becomes
// one Fragment.
package alignio

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/rnaquant/efflen"
	"github.com/grailbio/rnaquant/libformat"
	"github.com/grailbio/rnaquant/quant"
)

type Opts struct {
	// CanDovetail accepts pairs whose mates extend past each other as
	// facing inward.
	CanDovetail bool
	// FlagExclude drops records with any of these flag bits.
	FlagExclude sam.Flags
}

var DefaultOpts = Opts{
	CanDovetail: false,
	FlagExclude: sam.QCFail | sam.Supplementary,
}

// ReadBAM reads the BAM at path.
func ReadBAM(ctx context.Context, path string, opts Opts) (transcripts []efflen.Transcript, frags []quant.Fragment, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, nil, errors.E(err, "alignio: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	transcripts, frags, err = Read(in.Reader(ctx), opts)
	if err != nil {
		err = errors.E(err, "alignio: read", path)
	}
	return
}

// Read decodes a BAM stream.  Transcripts are the header's references, in
// header order, so a reference's ID is its transcript ID.
func Read(r io.Reader, opts Opts) ([]efflen.Transcript, []quant.Fragment, error) {
	br, err := bam.NewReader(r, 1)
	if err != nil {
		return nil, nil, err
	}
	defer br.Close() // nolint: errcheck
	refs := br.Header().Refs()
	transcripts := make([]efflen.Transcript, len(refs))
	for i, ref := range refs {
		transcripts[i] = efflen.Transcript{Name: ref.Name(), RefLength: ref.Len()}
	}

	var (
		frags []quant.Fragment
		group []*sam.Record
		nRec  int
	)
	flush := func() {
		if len(group) > 0 {
			frags = append(frags, FragmentFromRecords(group, opts))
			group = group[:0]
		}
	}
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		nRec++
		if rec.Flags&opts.FlagExclude != 0 {
			continue
		}
		if len(group) > 0 && group[0].Name != rec.Name {
			flush()
		}
		group = append(group, rec)
	}
	flush()
	log.Printf("alignio: %d records, %d fragments, %d transcripts", nRec, len(frags), len(transcripts))
	return transcripts, frags, nil
}

func isMapped(r *sam.Record) bool {
	return r.Flags&sam.Unmapped == 0 && r.Ref != nil && r.Ref.ID() >= 0
}

func isForward(r *sam.Record) bool {
	return r.Flags&sam.Reverse == 0
}

// mateOf reports whether b is the mate record of a: the other read of the
// pair, aligned where a says its mate is.
func mateOf(a, b *sam.Record) bool {
	return a.Flags&(sam.Read1|sam.Read2) != b.Flags&(sam.Read1|sam.Read2) &&
		a.Ref.ID() == b.Ref.ID() &&
		a.MatePos == b.Pos && b.MatePos == a.Pos
}

// FragmentFromRecords builds the Fragment for all records sharing one read
// name.  Mates aligned to the same transcript at each other's mate positions
// become one paired hit; any other mapped record of a paired read is an
// orphan hit; records of unpaired reads are single-end hits.
func FragmentFromRecords(recs []*sam.Record, opts Opts) quant.Fragment {
	frag := quant.Fragment{MappingType: libformat.Unmapped}
	if len(recs) == 0 {
		return frag
	}
	frag.Name = recs[0].Name
	used := make([]bool, len(recs))
	var paired, left, right, single bool
	for i, r := range recs {
		if used[i] || !isMapped(r) {
			continue
		}
		used[i] = true
		if r.Flags&sam.Paired == 0 {
			single = true
			frag.Hits = append(frag.Hits, quant.Hit{
				TranscriptID: int32(r.Ref.ID()),
				Format:       libformat.HitTypeSingle(int32(r.Pos), isForward(r)),
				Start:        int32(r.Pos),
				IsForward:    isForward(r),
				MateStatus:   libformat.MateSingleEnd,
			})
			continue
		}
		mate := -1
		if r.Flags&sam.MateUnmapped == 0 {
			for j := i + 1; j < len(recs); j++ {
				if !used[j] && isMapped(recs[j]) && mateOf(r, recs[j]) {
					mate = j
					break
				}
			}
		}
		if mate < 0 {
			ms := libformat.MatePairedEndLeft
			if r.Flags&sam.Read2 != 0 {
				ms = libformat.MatePairedEndRight
				right = true
			} else {
				left = true
			}
			frag.Hits = append(frag.Hits, quant.Hit{
				TranscriptID: int32(r.Ref.ID()),
				Format:       libformat.HitTypeSingle(int32(r.Pos), isForward(r)),
				Start:        int32(r.Pos),
				IsForward:    isForward(r),
				MateStatus:   ms,
			})
			continue
		}
		used[mate] = true
		paired = true
		frag.Hits = append(frag.Hits, pairedHit(r, recs[mate], opts))
	}
	switch {
	case paired:
		frag.MappingType = libformat.PairedMapped
	case left && right:
		frag.MappingType = libformat.BothOrphan
	case left:
		frag.MappingType = libformat.LeftOrphan
	case right:
		frag.MappingType = libformat.RightOrphan
	case single:
		frag.MappingType = libformat.SingleMapped
	}
	return frag
}

func pairedHit(a, b *sam.Record, opts Opts) quant.Hit {
	r1, r2 := a, b
	if a.Flags&sam.Read2 != 0 {
		r1, r2 = b, a
	}
	upstream := r1
	if r2.Pos < r1.Pos {
		upstream = r2
	}
	fragLen := r1.TempLen
	if fragLen < 0 {
		fragLen = -fragLen
	}
	if fragLen == 0 {
		end := r1.End()
		if e := r2.End(); e > end {
			end = e
		}
		fragLen = end - upstream.Pos
	}
	return quant.Hit{
		TranscriptID: int32(r1.Ref.ID()),
		Format: libformat.HitTypePairedDovetail(
			int32(r1.Pos), isForward(r1), uint32(r1.Len()),
			int32(r2.Pos), isForward(r2), uint32(r2.Len()), opts.CanDovetail),
		Start:      int32(upstream.Pos),
		IsForward:  isForward(upstream),
		MateStatus: libformat.MatePairedEndPaired,
		FragLen:    int32(fragLen),
	}
}
