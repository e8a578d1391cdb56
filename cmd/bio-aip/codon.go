package main

import (
	"fmt"
	"runtime"

	"github.com/grailbio/aip/annotate"
	"github.com/grailbio/aip/codon"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdCodonIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "codon-index",
		Short:    "Index ClinVar pathogenic missense variants by protein residue",
		ArgsName: "clinvarpath outputpath",
		Long: `
clinvarpath is an annotated variant table of ClinVar SNVs, in the same
format as the run input. outputpath is a TSV of
protein_id::protein_start and the '+'-joined allele_id::gold_stars entries
at that residue.`,
	}
	parallelism := cmd.Flags.Int("parallelism", 0, "Number of shards flattened concurrently; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("codon-index takes clinvarpath outputpath, but got %v", argv)
		}
		ctx := vcontext.Background()
		p := *parallelism
		if p <= 0 {
			p = runtime.NumCPU()
		}
		tbl, err := variant.ReadTable(ctx, argv[0])
		if err != nil {
			return err
		}
		rows := annotate.FlattenRows(tbl.Rows, p, nil)
		return codon.Build(rows, nil).Write(ctx, argv[1])
	})
	return cmd
}
