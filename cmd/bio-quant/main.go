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
package main

/*
bio-quant estimates transcript abundances from a name-grouped BAM of
alignments to a transcriptome.  Alignments whose mate geometry contradicts
the expected library format are down-weighted by -incompat-prior.

Writes <out>.quant.sf and <out>.lib_format_counts.tsv.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/rnaquant/alignio"
	"github.com/grailbio/rnaquant/quant"
)

var (
	libType           = flag.String("libtype", quant.DefaultOpts.LibFormat, "Expected library format, e.g. IU, ISR, SF or U")
	incompatPrior     = flag.Float64("incompat-prior", quant.DefaultOpts.IncompatPrior, "Probability of an alignment whose format contradicts -libtype; 0 discards such alignments")
	minIter           = flag.Int("min-iter", quant.DefaultOpts.MinIter, "Minimum number of EM rounds")
	maxIter           = flag.Int("max-iter", quant.DefaultOpts.MaxIter, "Maximum number of EM rounds")
	effLenUpdateEvery = flag.Int("efflen-update-every", quant.DefaultOpts.EffLenUpdateEvery, "Recompute effective lengths every this many EM rounds; 0 = only after convergence")
	fldMean           = flag.Float64("fld-mean", quant.DefaultOpts.FLDMean, "Prior mean fragment length")
	fldSD             = flag.Float64("fld-sd", quant.DefaultOpts.FLDSD, "Prior fragment length standard deviation")
	fldMax            = flag.Int("fld-max", quant.DefaultOpts.FLDMax, "Longest fragment length modeled")
	posBias           = flag.Bool("pos-bias", quant.DefaultOpts.EffLen.PosBiasCorrect, "Correct effective lengths for positional bias")
	dovetail          = flag.Bool("dovetail", alignio.DefaultOpts.CanDovetail, "Accept dovetailing mates as concordant")
	flagExclude       = flag.Int("flag-exclude", int(alignio.DefaultOpts.FlagExclude), "Records with a FLAG bit intersecting this value are skipped")
	parallelism       = flag.Int("parallelism", quant.DefaultOpts.Parallelism, "Maximum number of concurrent shards; 0 = runtime.NumCPU()")
	optsYAML          = flag.String("opts-yaml", "", "YAML file of quantification options; explicitly set flags take precedence")
	outPrefix         = flag.String("out", "bio-quant", "Output path prefix")
)

func bioQuantUsage() {
	fmt.Printf("Usage: %s [OPTIONS] bampath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioQuantUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("Expected exactly one positional argument (bampath); please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	ctx := vcontext.Background()

	opts := quant.DefaultOpts
	if *optsYAML != "" {
		if err := quant.LoadOpts(ctx, *optsYAML, &opts); err != nil {
			log.Fatalf("%v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "libtype":
			opts.LibFormat = *libType
		case "incompat-prior":
			opts.IncompatPrior = *incompatPrior
		case "min-iter":
			opts.MinIter = *minIter
		case "max-iter":
			opts.MaxIter = *maxIter
		case "efflen-update-every":
			opts.EffLenUpdateEvery = *effLenUpdateEvery
		case "fld-mean":
			opts.FLDMean = *fldMean
		case "fld-sd":
			opts.FLDSD = *fldSD
		case "fld-max":
			opts.FLDMax = *fldMax
		case "pos-bias":
			opts.EffLen.PosBiasCorrect = *posBias
		case "parallelism":
			opts.Parallelism = *parallelism
			opts.EffLen.Parallelism = *parallelism
		}
	})
	ioOpts := alignio.Opts{
		CanDovetail: *dovetail,
		FlagExclude: sam.Flags(*flagExclude),
	}

	transcripts, frags, err := alignio.ReadBAM(ctx, flag.Arg(0), ioOpts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	res, err := quant.Run(ctx, opts, transcripts, frags)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("bio-quant: %d EM rounds, converged=%v, mean fragment length %.1f", res.Iterations, res.Converged, res.FLDMean)
	if err := quant.WriteQuant(ctx, *outPrefix+".quant.sf", res); err != nil {
		log.Fatalf("%v", err)
	}
	if err := quant.WriteFormatCounts(ctx, *outPrefix+".lib_format_counts.tsv", res); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
