package quant

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/rnaquant/libformat"
)

// WriteQuant writes one row per transcript:
//
//   Name Length EffectiveLength TPM NumReads
func WriteQuant(ctx context.Context, path string, res *Result) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, dst, &err)

	w := tsv.NewWriter(dst.Writer(ctx))
	for _, col := range []string{"Name", "Length", "EffectiveLength", "TPM", "NumReads"} {
		w.WriteString(col)
	}
	if err = w.EndLine(); err != nil {
		return
	}
	for i, t := range res.Transcripts {
		w.WriteString(t.Name)
		w.WriteString(strconv.Itoa(t.RefLength))
		w.WriteString(strconv.FormatFloat(res.EffLens[i], 'f', 3, 64))
		w.WriteString(strconv.FormatFloat(res.TPM[i], 'f', 6, 64))
		w.WriteString(strconv.FormatFloat(res.Alphas[i], 'f', 3, 64))
		if err = w.EndLine(); err != nil {
			return
		}
	}
	return w.Flush()
}

// WriteFormatCounts writes the expected library format, how many alignments
// agreed with it, and the observed format of every uniquely mapped fragment.
func WriteFormatCounts(ctx context.Context, path string, res *Result) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, dst, &err)

	w := tsv.NewWriter(dst.Writer(ctx))
	row := func(key string, v int64) error {
		w.WriteString(key)
		w.WriteString(strconv.FormatInt(v, 10))
		return w.EndLine()
	}
	w.WriteString("expected_format")
	w.WriteString(res.ExpectedFormat.String())
	if err = w.EndLine(); err != nil {
		return
	}
	s := res.Stats
	if err = row("compatible_hits", s.CompatibleHits); err != nil {
		return
	}
	if err = row("incompatible_hits", s.IncompatibleHits); err != nil {
		return
	}
	if err = row("dropped_fragments", s.DroppedFragments); err != nil {
		return
	}
	for m, n := range s.MappingTypes {
		if err = row("mapping_type_"+libformat.MappingType(m).String(), n); err != nil {
			return
		}
	}
	// Orphans and single-end reads share codes, so the read type is part of
	// the key.
	keys := make([]string, 0, len(s.FormatCounts))
	counts := make(map[string]int64, len(s.FormatCounts))
	for f, n := range s.FormatCounts {
		key := fmt.Sprintf("format_%s_%s", f.Type, f)
		keys = append(keys, key)
		counts[key] += n
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err = row(key, counts[key]); err != nil {
			return
		}
	}
	return w.Flush()
}
