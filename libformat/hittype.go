package libformat

// HitTypePaired returns the library format a paired alignment is compatible
// with, given each mate's leftmost aligned position and strand.
//
// When the mates are on opposite strands the pair faces inward (Toward) if
// the forward mate starts at or before the reverse mate, and outward (Away)
// otherwise.  On a tie the forward mate is upstream, so the result does not
// depend on which mate is called read 1.  Strandedness follows read 1:
// Sense when read 1 is forward.
func HitTypePaired(end1Start int32, end1Fwd bool, end2Start int32, end2Fwd bool) LibraryFormat {
	return hitTypePaired(end1Start, end1Fwd, 0, end2Start, end2Fwd, 0, false)
}

// HitTypePairedDovetail is HitTypePaired with the mates' aligned lengths.
// A pair is dovetailed when the forward mate starts after the reverse mate
// but no later than the reverse mate's end: the mates face each other and have
// extended past one another.  With canDovetail such pairs are Toward;
// otherwise they are classified as Dovetail.
func HitTypePairedDovetail(end1Start int32, end1Fwd bool, len1 uint32,
	end2Start int32, end2Fwd bool, len2 uint32, canDovetail bool) LibraryFormat {
	return hitTypePaired(end1Start, end1Fwd, len1, end2Start, end2Fwd, len2, canDovetail)
}

func hitTypePaired(end1Start int32, end1Fwd bool, len1 uint32,
	end2Start int32, end2Fwd bool, len2 uint32, canDovetail bool) LibraryFormat {
	if end1Fwd == end2Fwd {
		if end1Fwd {
			return New(PairedEnd, Same, Sense)
		}
		return New(PairedEnd, Same, Antisense)
	}
	strand := Antisense
	fwdStart, revStart, revLen := end2Start, end1Start, len1
	if end1Fwd {
		strand = Sense
		fwdStart, revStart, revLen = end1Start, end2Start, len2
	}
	if fwdStart <= revStart {
		return New(PairedEnd, Toward, strand)
	}
	// revLen is zero when lengths are unknown, so HitTypePaired never
	// reaches the dovetail branch.
	if int64(fwdStart) <= int64(revStart)+int64(revLen) {
		if canDovetail {
			return New(PairedEnd, Toward, strand)
		}
		return New(PairedEnd, Dovetail, strand)
	}
	return New(PairedEnd, Away, strand)
}

// HitTypeSingle returns the library format a single-end alignment is
// compatible with.  The orientation axis is meaningless and is None.
func HitTypeSingle(readStart int32, isForward bool) LibraryFormat {
	if isForward {
		return New(SingleEnd, None, Sense)
	}
	return New(SingleEnd, None, Antisense)
}
