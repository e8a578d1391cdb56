package main

/*
bio-aip classifies the variants of a joint-called, annotated cohort table
against a gene panel, and lists compound-heterozygous candidates.

  bio-aip run -config=aip.yaml -panel=panel.json -pedigree=cohort.fam \
    -output=out/categorised.jsonl.gz -summary=out/summary.tsv.bgz \
    -pairs=out/comphet.json s3://bucket/cohort.jsonl.gz

  bio-aip minimise -exclude=support out/categorised.jsonl.gz out/comphet.json out/seqr.json

  bio-aip codon-index clinvar.jsonl.gz clinvar_by_codon.tsv
*/

import (
	"github.com/grailbio/base/grail"
	"v.io/x/lib/cmdline"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-aip",
			Short:    "Variant categorisation and compound-het candidate finder",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdRun(),
				newCmdMinimise(),
				newCmdCodonIndex(),
			},
		})
}
