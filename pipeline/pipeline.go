// Package pipeline runs the classification stages in order over a variant
// table: quality filter, annotation flattening, population and panel
// filter, de novo detection, categorisation and compound-het pairing.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/aip/annotate"
	"github.com/grailbio/aip/category"
	"github.com/grailbio/aip/codon"
	"github.com/grailbio/aip/comphet"
	"github.com/grailbio/aip/config"
	"github.com/grailbio/aip/denovo"
	"github.com/grailbio/aip/panel"
	"github.com/grailbio/aip/pedigree"
	"github.com/grailbio/aip/popfilter"
	"github.com/grailbio/aip/qc"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Opts controls a run.
type Opts struct {
	// Config holds the thresholds loaded from the configuration document.
	Config config.Opts
	// QC holds the allele balance bands. Its ACThreshold is replaced by
	// Config.ACThreshold.
	QC qc.Opts
	// DeNovo holds the de novo model constants.
	DeNovo      denovo.Opts
	Parallelism int
	// CheckpointOutput, if set, is where the filtered table is saved
	// before classification.
	CheckpointOutput string
	// CheckpointInput, if set, names a checkpoint written by an earlier
	// run. The filtering stages are skipped and Input.Table is ignored.
	CheckpointInput string
}

// DefaultOpts is the default value for Opts. Config has no usable default
// and must be set.
var DefaultOpts = Opts{
	Config:      config.DefaultOpts,
	QC:          qc.DefaultOpts,
	DeNovo:      denovo.DefaultOpts,
	Parallelism: 1,
}

// Input holds the data a run reads. Table is not modified.
type Input struct {
	Table    *variant.Table
	Panel    *panel.Panel
	Pedigree *pedigree.Pedigree
	// Codon, if set, is searched for ClinVar pathogenic alleles at the
	// residues changed by each categorised row.
	Codon codon.Index
}

// Stats collects the stats of every stage.
type Stats struct {
	QC        qc.Stats
	Annotate  annotate.Stats
	PopFilter popfilter.Stats
	DeNovo    denovo.Stats
	Category  category.Stats
	CompHet   comphet.Stats
}

// Result is the output of Run.
type Result struct {
	// Table holds the categorised rows.
	Table *variant.Table
	// Pairs holds the compound-het candidates.
	Pairs comphet.Pairs
	// DeNovo holds the high confidence de novo calls.
	DeNovo denovo.Index
	Stats  Stats
}

// stageError identifies the stage, and the site or sample, that a failure
// is attributed to.
type stageError struct {
	stage string
	id    string
	err   error
}

func (e *stageError) Error() string {
	if e.id == "" {
		return fmt.Sprintf("%s: %v", e.stage, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.stage, e.id, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

// Stage returns the stage name of an error returned by Run, or "".
func Stage(err error) string {
	if e, ok := err.(*stageError); ok {
		return e.stage
	}
	return ""
}

// checkpointMeta is stored with a checkpoint so that a resumed run
// classifies against the same panel.
type checkpointMeta struct {
	Green, New []string
	RefGenome  string
}

func newCheckpointMeta(p *panel.Panel, refGenome string) checkpointMeta {
	m := checkpointMeta{Green: p.Genes(), RefGenome: refGenome}
	for _, g := range m.Green {
		if p.IsNew(g) {
			m.New = append(m.New, g)
		}
	}
	return m
}

// validate checks the shape of the input table.
func validate(tbl *variant.Table) error {
	if tbl == nil {
		return &stageError{stage: "input", err: errors.E(errors.Invalid, "no variant table")}
	}
	for i, r := range tbl.Rows {
		if len(r.Calls) != len(tbl.Samples) {
			id := fmt.Sprintf("row %d", i)
			if len(r.Alleles) == 2 {
				id = r.Key().String()
			}
			return &stageError{stage: "input", id: id, err: errors.E(errors.Invalid,
				fmt.Sprintf("%d genotype calls, %d samples", len(r.Calls), len(tbl.Samples)))}
		}
	}
	return nil
}

// filter runs the stages that do not depend on the category thresholds.
func filter(in Input, opts Opts, stats *Stats) *variant.Table {
	tbl := in.Table.Clone()
	qcOpts := opts.QC
	qcOpts.ACThreshold = opts.Config.ACThreshold
	qcOpts.Parallelism = opts.Parallelism
	rows := qc.Filter(tbl.Rows, qcOpts, &stats.QC)
	rows = annotate.FlattenRows(rows, opts.Parallelism, &stats.Annotate)
	rows = popfilter.Apply(rows, popfilter.Opts{
		AFSemiRare:  opts.Config.AFSemiRare,
		UselessCSQ:  opts.Config.UselessCSQ,
		Parallelism: opts.Parallelism,
	}, in.Panel, &stats.PopFilter)
	tbl.Rows = rows
	return tbl
}

// Run runs the pipeline. The configuration, panel and pedigree must
// already be loaded; errors in them are reported before any row is
// processed.
func Run(ctx context.Context, in Input, opts Opts) (*Result, error) {
	start := time.Now()
	if err := opts.Config.Validate(); err != nil {
		return nil, &stageError{stage: "config", err: err}
	}
	res := &Result{}
	var tbl *variant.Table
	if opts.CheckpointInput != "" {
		var meta checkpointMeta
		var err error
		if tbl, err = variant.ReadCheckpoint(ctx, opts.CheckpointInput, &meta); err != nil {
			return nil, &stageError{stage: "checkpoint", err: err}
		}
		if in.Panel == nil {
			if in.Panel, err = panel.New(meta.Green, meta.New); err != nil {
				return nil, &stageError{stage: "checkpoint", err: err}
			}
		}
	} else {
		if in.Panel == nil {
			return nil, &stageError{stage: "panel", err: errors.E(errors.Invalid, "no gene panel")}
		}
		if err := validate(in.Table); err != nil {
			return nil, err
		}
		tbl = filter(in, opts, &res.Stats)
		if opts.CheckpointOutput != "" {
			meta := newCheckpointMeta(in.Panel, opts.Config.RefGenome)
			if err := variant.WriteCheckpoint(ctx, opts.CheckpointOutput, tbl, meta); err != nil {
				return nil, &stageError{stage: "checkpoint", err: err}
			}
		}
	}

	if in.Pedigree != nil {
		dnOpts := opts.DeNovo
		dnOpts.Parallelism = opts.Parallelism
		if opts.Config.RefGenome != "" {
			dnOpts.PAR = denovo.ParForGenome(opts.Config.RefGenome)
		}
		res.DeNovo = denovo.Detect(tbl, in.Pedigree, dnOpts, &res.Stats.DeNovo)
	} else {
		log.Printf("No pedigree, skipping de novo detection")
	}

	classifier := category.New(opts.Config, in.Panel, res.DeNovo)
	tbl.Rows = category.Apply(tbl.Rows, classifier, opts.Parallelism, &res.Stats.Category)
	if len(opts.Config.CSQFields) > 0 {
		tbl.Rows = variant.Map(tbl.Rows, opts.Parallelism, func(_ int, r *variant.Record, out []*variant.Record) []*variant.Record {
			r.CSQ = annotate.CSQ(r, opts.Config.CSQFields)
			return append(out, r)
		})
	}
	if in.Codon != nil {
		tbl.Rows = variant.Map(tbl.Rows, opts.Parallelism, func(_ int, r *variant.Record, out []*variant.Record) []*variant.Record {
			r.ClinvarCodon = in.Codon.Lookup(r)
			return append(out, r)
		})
	}
	res.Table = tbl

	res.Pairs = comphet.Find(tbl, comphet.Opts{
		MaxPairsPerGene:   opts.Config.MaxPairsPerGene,
		PairWarnThreshold: opts.Config.PairWarnThreshold,
		Parallelism:       opts.Parallelism,
	}, &res.Stats.CompHet)
	log.Printf("Run finished in %v: %d categorised rows, %d compound-het pairs",
		time.Since(start), len(tbl.Rows), res.Stats.CompHet.Pairs)
	return res, nil
}

// Outputs names the files Write produces. Empty paths are skipped.
type Outputs struct {
	// Table is the categorised table as JSON Lines.
	Table string
	// Summary is the per-row TSV summary.
	Summary string
	// Pairs is the compound-het JSON.
	Pairs string
}

// Write writes the result files.
func (r *Result) Write(ctx context.Context, out Outputs, parallelism int) error {
	if out.Table != "" {
		if err := variant.WriteJSON(ctx, out.Table, r.Table); err != nil {
			return &stageError{stage: "output", err: err}
		}
	}
	if out.Summary != "" {
		if err := variant.WriteSummary(ctx, out.Summary, r.Table, parallelism); err != nil {
			return &stageError{stage: "output", err: err}
		}
	}
	if out.Pairs != "" {
		if err := r.Pairs.Write(ctx, out.Pairs); err != nil {
			return &stageError{stage: "output", err: err}
		}
	}
	return nil
}
