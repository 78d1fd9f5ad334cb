package quant

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/rnaquant/efflen"
	"github.com/grailbio/rnaquant/libformat"
	"gopkg.in/yaml.v3"
)

type Opts struct {
	// LibFormat is the expected library protocol code, e.g. "ISR" or "U".
	LibFormat string `yaml:"lib_format"`
	// IncompatPrior is the probability mass given to an alignment that
	// contradicts LibFormat.  0 drops such alignments.
	IncompatPrior float64 `yaml:"incompat_prior"`

	// MinIter and MaxIter bound the number of EM rounds.
	MinIter int `yaml:"min_iter"`
	MaxIter int `yaml:"max_iter"`
	// RelDiffTolerance is the largest relative change in abundance, among
	// transcripts above AlphaCheckCutoff, at which EM is considered converged.
	RelDiffTolerance float64 `yaml:"rel_diff_tolerance"`
	AlphaCheckCutoff float64 `yaml:"alpha_check_cutoff"`
	// EffLenUpdateEvery recomputes effective lengths every so many rounds;
	// 0 only recomputes them once, after convergence.
	EffLenUpdateEvery int `yaml:"efflen_update_every"`

	// Fragment length distribution prior.
	FLDMean      float64 `yaml:"fld_mean"`
	FLDSD        float64 `yaml:"fld_sd"`
	FLDMax       int     `yaml:"fld_max"`
	FLDPriorMass float64 `yaml:"fld_prior_mass"`
	// PosBiasBins is the resolution of the positional bias profile.
	PosBiasBins int `yaml:"pos_bias_bins"`

	// Parallelism is the number of fragment shards processed concurrently;
	// 0 means runtime.NumCPU().
	Parallelism int `yaml:"parallelism"`

	EffLen efflen.Opts `yaml:"efflen"`
}

var DefaultOpts = Opts{
	LibFormat:         "IU",
	IncompatPrior:     1e-20,
	MinIter:           50,
	MaxIter:           10000,
	RelDiffTolerance:  0.01,
	AlphaCheckCutoff:  1e-2,
	EffLenUpdateEvery: 100,
	FLDMean:           250,
	FLDSD:             25,
	FLDMax:            1000,
	FLDPriorMass:      1,
	PosBiasBins:       efflen.DefaultNumBins,
	Parallelism:       0,
	EffLen:            efflen.DefaultOpts,
}

// Validate checks opts.  It is called once before any fragment is looked at,
// so a bad incompatibility prior fails the run up front instead of per read.
func (o *Opts) Validate() error {
	if _, err := libformat.ParseLibraryFormat(o.LibFormat); err != nil {
		return err
	}
	if err := libformat.ValidateIncompatPrior(o.IncompatPrior); err != nil {
		return err
	}
	if o.MaxIter < 1 || o.MinIter < 0 || o.MinIter > o.MaxIter {
		return errors.E(errors.Invalid, fmt.Sprintf("quant: need 0 <= min_iter (%d) <= max_iter (%d), max_iter >= 1", o.MinIter, o.MaxIter))
	}
	if o.RelDiffTolerance <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("quant: rel_diff_tolerance must be > 0, got %v", o.RelDiffTolerance))
	}
	if o.EffLenUpdateEvery < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("quant: efflen_update_every must be >= 0, got %d", o.EffLenUpdateEvery))
	}
	if o.FLDMax < 1 || o.FLDSD <= 0 || o.FLDPriorMass < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("quant: bad fragment length prior (mean %v, sd %v, max %d, mass %v)",
			o.FLDMean, o.FLDSD, o.FLDMax, o.FLDPriorMass))
	}
	return o.EffLen.Validate()
}

// LoadOpts overlays the YAML file at path onto opts.  Keys missing from the
// file keep their current values.
func LoadOpts(ctx context.Context, path string, opts *Opts) error {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return errors.E(err, "quant: read options", path)
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return errors.E(errors.Invalid, err, "quant: parse options", path)
	}
	return nil
}
