package libformat

import (
	"strings"

	"github.com/grailbio/base/errors"
)

// ParseLibraryFormat converts a protocol code into a LibraryFormat.
//
// Paired-end codes are an orientation letter (I, O or M) followed by U, SF or
// SR; single-end codes are U, SF or SR.  Codes are case insensitive.  The
// automatic-detection code "A" is not a format and is rejected.
func ParseLibraryFormat(code string) (LibraryFormat, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return LibraryFormat{}, errors.E(errors.Invalid, "empty library format")
	}
	f := LibraryFormat{Type: SingleEnd, Orientation: None}
	switch c[0] {
	case 'I':
		f.Type, f.Orientation = PairedEnd, Toward
	case 'O':
		f.Type, f.Orientation = PairedEnd, Away
	case 'M':
		f.Type, f.Orientation = PairedEnd, Same
	}
	rest := c
	if f.Type == PairedEnd {
		rest = c[1:]
	}
	switch rest {
	case "U":
		f.Strandedness = Unstranded
	case "SF":
		f.Strandedness = Sense
	case "SR":
		f.Strandedness = Antisense
	default:
		return LibraryFormat{}, errors.E(errors.Invalid, "unknown library format:", code)
	}
	return f, nil
}

// MustParse is ParseLibraryFormat for compile-time constants.  It panics on
// error.
func MustParse(code string) LibraryFormat {
	f, err := ParseLibraryFormat(code)
	if err != nil {
		panic(err)
	}
	return f
}
