package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/aip/codon"
	"github.com/grailbio/aip/comphet"
	"github.com/grailbio/aip/config"
	"github.com/grailbio/aip/interval"
	"github.com/grailbio/aip/minimise"
	"github.com/grailbio/aip/panel"
	"github.com/grailbio/aip/pedigree"
	"github.com/grailbio/aip/pipeline"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

type runFlags struct {
	configPath       string
	panelPath        string
	pedigreePath     string
	codonPath        string
	regionsPath      string
	region           string
	output           string
	summary          string
	pairs            string
	minimiseOutput   string
	exclude          string
	excludeMode      string
	checkpointOutput string
	checkpointInput  string
	parallelism      int
	minChildGQ       int
	hetMinAB         float64
	hetMaxAB         float64
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Filter, categorise and pair the variants of a cohort table",
		ArgsName: "tablepath",
		Long: `
tablepath is a JSON Lines variant table, optionally compressed. It may be
omitted when -checkpoint-input is set.`,
	}
	f := runFlags{}
	cmd.Flags.StringVar(&f.configPath, "config", "", "JSON or YAML configuration; required")
	cmd.Flags.StringVar(&f.panelPath, "panel", "", "Gene panel JSON. Required unless -checkpoint-input is set")
	cmd.Flags.StringVar(&f.pedigreePath, "pedigree", "", "PLINK .fam pedigree. De novo detection is skipped if empty")
	cmd.Flags.StringVar(&f.codonPath, "codon-index", "", "ClinVar-by-codon TSV from codon-index. Matches are added to the categorised table")
	cmd.Flags.StringVar(&f.regionsPath, "regions", "", "BED of target regions. Sites outside it are dropped")
	cmd.Flags.StringVar(&f.region, "region", "", "Restrict the analysis to a region, <contig>:<1-based first pos>-<last pos> or <contig>")
	cmd.Flags.StringVar(&f.output, "output", "", "Categorised table, JSON Lines. Gzipped if the path ends in .gz")
	cmd.Flags.StringVar(&f.summary, "summary", "", "Per-variant category TSV. Bgzf-compressed if the path ends in .bgz")
	cmd.Flags.StringVar(&f.pairs, "pairs", "", "Compound-het candidates, JSON")
	cmd.Flags.StringVar(&f.minimiseOutput, "minimise-output", "", "If set, also write the minimised per-sample summary here")
	cmd.Flags.StringVar(&f.exclude, "exclude", "", "Comma-separated categories left out of -minimise-output")
	cmd.Flags.StringVar(&f.excludeMode, "exclude-mode", "exact", "How -exclude removes variants: 'exact' or 'any'")
	cmd.Flags.StringVar(&f.checkpointOutput, "checkpoint-output", "", "Save the filtered table here before categorisation")
	cmd.Flags.StringVar(&f.checkpointInput, "checkpoint-input", "", "Resume from a checkpoint written by -checkpoint-output")
	cmd.Flags.IntVar(&f.parallelism, "parallelism", 0, "Number of shards processed concurrently; 0 = runtime.NumCPU()")
	cmd.Flags.IntVar(&f.minChildGQ, "min-child-gq", pipeline.DefaultOpts.DeNovo.MinChildGQ, "Minimum child GQ for a de novo call")
	cmd.Flags.Float64Var(&f.hetMinAB, "het-min-ab", pipeline.DefaultOpts.QC.HetMinAB, "Lower allele balance bound of a het call")
	cmd.Flags.Float64Var(&f.hetMaxAB, "het-max-ab", pipeline.DefaultOpts.QC.HetMaxAB, "Upper allele balance bound of a het call")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) > 1 {
			return fmt.Errorf("run takes at most one table path, but got %v", argv)
		}
		var tablePath string
		if len(argv) == 1 {
			tablePath = argv[0]
		}
		return run(f, tablePath)
	})
	return cmd
}

func parseExclude(s string) ([]variant.Category, error) {
	var cats []variant.Category
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		c, err := variant.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, nil
}

func run(f runFlags, tablePath string) error {
	ctx := vcontext.Background()
	if f.configPath == "" {
		return errors.E(errors.Invalid, "-config is required")
	}
	if tablePath == "" && f.checkpointInput == "" {
		return errors.E(errors.Invalid, "a table path or -checkpoint-input is required")
	}
	if tablePath != "" && f.checkpointInput != "" {
		return errors.E(errors.Invalid, "a table path and -checkpoint-input are mutually exclusive")
	}
	mode, err := minimise.ParseMode(f.excludeMode)
	if err != nil {
		return err
	}
	exclude, err := parseExclude(f.exclude)
	if err != nil {
		return err
	}

	// Everything that can be wrong with the run inputs is checked before
	// the table is read.
	opts := pipeline.DefaultOpts
	if opts.Config, err = config.Load(ctx, f.configPath); err != nil {
		return err
	}
	opts.Parallelism = f.parallelism
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	opts.QC.HetMinAB = f.hetMinAB
	opts.QC.HetMaxAB = f.hetMaxAB
	opts.DeNovo.MinChildGQ = f.minChildGQ
	opts.CheckpointOutput = f.checkpointOutput
	opts.CheckpointInput = f.checkpointInput

	switch {
	case f.regionsPath != "" && f.region != "":
		return errors.E(errors.Invalid, "-regions and -region are mutually exclusive")
	case f.regionsPath != "":
		if opts.QC.Regions, err = interval.LoadBED(ctx, f.regionsPath); err != nil {
			return err
		}
	case f.region != "":
		e, err := interval.ParseRegion(f.region)
		if err != nil {
			return errors.E(errors.Invalid, err)
		}
		opts.QC.Regions = interval.NewUnion([]interval.Entry{e})
	}

	var in pipeline.Input
	if f.panelPath != "" {
		if in.Panel, err = panel.Load(ctx, f.panelPath); err != nil {
			return err
		}
	} else if f.checkpointInput == "" {
		return errors.E(errors.Invalid, "-panel is required")
	}
	if f.pedigreePath != "" {
		if in.Pedigree, err = pedigree.Read(ctx, f.pedigreePath); err != nil {
			return err
		}
	}
	if f.codonPath != "" {
		if in.Codon, err = codon.Read(ctx, f.codonPath); err != nil {
			return err
		}
	}
	if tablePath != "" {
		if in.Table, err = variant.ReadTable(ctx, tablePath); err != nil {
			return err
		}
	}

	res, err := pipeline.Run(ctx, in, opts)
	if err != nil {
		return err
	}
	if err = res.Write(ctx, pipeline.Outputs{Table: f.output, Summary: f.summary, Pairs: f.pairs}, opts.Parallelism); err != nil {
		return err
	}
	if f.minimiseOutput != "" {
		mini := minimise.Minimise(res.Table, res.Pairs, minimise.Opts{Exclude: exclude, Mode: mode}, nil)
		if err = mini.Write(ctx, f.minimiseOutput); err != nil {
			return err
		}
	}
	log.Printf("Stats: run: %+v", res.Stats)
	return nil
}

func newCmdMinimise() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "minimise",
		Short:    "Reduce a categorised table and its comp-het pairs to the per-sample seqr summary",
		ArgsName: "tablepath pairspath outputpath",
	}
	exclude := cmd.Flags.String("exclude", "", "Comma-separated categories to leave out")
	mode := cmd.Flags.String("exclude-mode", "exact", `How -exclude removes variants. 'exact' removes variants whose
categories are exactly {c} or {c, support} for an excluded c; 'any' removes
variants carrying any excluded category.`)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("minimise takes tablepath pairspath outputpath, but got %v", argv)
		}
		ctx := vcontext.Background()
		m, err := minimise.ParseMode(*mode)
		if err != nil {
			return err
		}
		cats, err := parseExclude(*exclude)
		if err != nil {
			return err
		}
		tbl, err := minimise.ReadTable(ctx, argv[0])
		if err != nil {
			return err
		}
		pairs, err := comphet.Read(ctx, argv[1])
		if err != nil {
			return err
		}
		out := minimise.Minimise(tbl, pairs, minimise.Opts{Exclude: cats, Mode: m}, nil)
		return out.Write(ctx, argv[2])
	})
	return cmd
}
