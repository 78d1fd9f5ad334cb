package quant

import "github.com/grailbio/rnaquant/libformat"

const numMappingTypes = int(libformat.SingleMapped) + 1

// Stats summarizes what the quantifier saw.  Each shard keeps its own Stats;
// they are combined with Merge.
type Stats struct {
	// Fragments is the number of fragments processed.
	Fragments int64
	// MappingTypes[m] counts fragments with libformat.MappingType m.
	MappingTypes [numMappingTypes]int64
	// Hits is the total number of alignments.
	Hits int64
	// CompatibleHits and IncompatibleHits split Hits by agreement with the
	// expected library format.
	CompatibleHits   int64
	IncompatibleHits int64
	// DroppedFragments counts mapped fragments none of whose alignments has
	// nonzero probability, e.g. because every one is incompatible and the
	// incompatibility prior is 0.
	DroppedFragments int64
	// FLDObservations counts fragments used to learn the fragment length
	// distribution.
	FLDObservations int64
	// FormatCounts counts the observed format of every uniquely mapped
	// fragment.  Orphans and single-end reads are counted by the format of
	// the aligned mate.
	FormatCounts map[libformat.LibraryFormat]int64
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Fragments += o.Fragments
	for i, n := range o.MappingTypes {
		s.MappingTypes[i] += n
	}
	s.Hits += o.Hits
	s.CompatibleHits += o.CompatibleHits
	s.IncompatibleHits += o.IncompatibleHits
	s.DroppedFragments += o.DroppedFragments
	s.FLDObservations += o.FLDObservations
	counts := make(map[libformat.LibraryFormat]int64, len(s.FormatCounts)+len(o.FormatCounts))
	for f, n := range s.FormatCounts {
		counts[f] += n
	}
	for f, n := range o.FormatCounts {
		counts[f] += n
	}
	s.FormatCounts = counts
	return s
}

func (s *Stats) addFormat(f libformat.LibraryFormat) {
	if s.FormatCounts == nil {
		s.FormatCounts = make(map[libformat.LibraryFormat]int64)
	}
	s.FormatCounts[f]++
}
