package variant

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

type outputCall struct {
	GT string `json:"GT"`
	AD []int  `json:"AD,omitempty"`
	DP int    `json:"DP,omitempty"`
	GQ *int   `json:"GQ,omitempty"`
}

type outputRow struct {
	Contig      string                `json:"contig"`
	Position    int                   `json:"position"`
	Alleles     []string              `json:"alleles"`
	Filters     []string              `json:"filters"`
	AC          int                   `json:"AC"`
	AN          int                   `json:"AN"`
	GeneID      string                `json:"gene_id"`
	Info        Info                  `json:"info"`
	Transcripts []Transcript          `json:"transcript_consequences"`
	Categories  []string              `json:"categories"`
	Category1   bool                  `json:"category1"`
	Category2   bool                  `json:"category2"`
	Category3   bool                  `json:"category3"`
	Category4   string                `json:"category4"`
	Support     bool                  `json:"category_support"`
	SupportOnly bool                  `json:"support_only"`
	CSQ         []string              `json:"csq,omitempty"`
	Codon       []string              `json:"clinvar_codon,omitempty"`
	Genotypes   map[string]outputCall `json:"genotypes"`
}

func newOutputRow(samples []string, r *Record) outputRow {
	row := outputRow{
		Contig:      r.Contig,
		Position:    r.Pos,
		Alleles:     r.Alleles,
		Filters:     r.Filters,
		AC:          r.AC,
		AN:          r.AN,
		GeneID:      r.GeneID,
		Info:        r.Info,
		Transcripts: r.Transcripts,
		Categories:  r.Categories.Strings(),
		Category1:   r.Categories.Has(Category1),
		Category2:   r.Categories.Has(Category2),
		Category3:   r.Categories.Has(Category3),
		Category4:   r.Category4(),
		Support:     r.Categories.Has(CategorySupport),
		SupportOnly: r.SupportOnly,
		CSQ:         r.CSQ,
		Codon:       r.ClinvarCodon,
		Genotypes:   map[string]outputCall{},
	}
	if row.Filters == nil {
		row.Filters = []string{}
	}
	if row.Categories == nil {
		row.Categories = []string{}
	}
	for i, c := range r.Calls {
		if c.GT == NoCall {
			continue
		}
		oc := outputCall{GT: c.GT.String(), AD: c.AD, DP: c.DP}
		if c.GQ >= 0 {
			gq := c.GQ
			oc.GQ = &gq
		}
		row.Genotypes[samples[i]] = oc
	}
	return row
}

// WriteJSON writes the table as JSON Lines, the sample header first and
// rows in site order. Calls that are NoCall are omitted.
func WriteJSON(ctx context.Context, path string, tbl *Table) (err error) {
	out, err := CreateOutput(ctx, path, 1)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	enc := json.NewEncoder(out.Writer())
	enc.SetEscapeHTML(false)
	if err = enc.Encode(tableHeader{Samples: tbl.Samples}); err != nil {
		return errors.E(err, path)
	}
	NewSortedRows(tbl.Rows).Do(func(r *Record) bool {
		if err = enc.Encode(newOutputRow(tbl.Samples, r)); err != nil {
			err = errors.E(err, path, r.Key().String())
			return true
		}
		return false
	})
	return err
}

// SummaryHeader is the header line of the TSV summary.
var SummaryHeader = []string{
	"#CHROM", "POS", "REF", "ALT", "GENE",
	"Category1", "Category2", "Category3", "Category4", "CategorySupport",
	"support_only", "CSQ",
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// WriteSummary writes one TSV line per row with the category flags, in site
// order. The file is bgzf-compressed when path ends in ".bgz".
func WriteSummary(ctx context.Context, path string, tbl *Table, parallelism int) (err error) {
	out, err := CreateOutput(ctx, path, parallelism)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	w := tsv.NewWriter(out.Writer())
	w.WriteString(strings.Join(SummaryHeader, "\t"))
	if err = w.EndLine(); err != nil {
		return errors.E(err, path)
	}
	NewSortedRows(tbl.Rows).Do(func(r *Record) bool {
		w.WriteString(r.Contig)
		w.WriteString(strconv.Itoa(r.Pos))
		w.WriteString(r.Alleles[0])
		w.WriteString(r.Alleles[1])
		w.WriteString(r.GeneID)
		w.WriteString(flag(r.Categories.Has(Category1)))
		w.WriteString(flag(r.Categories.Has(Category2)))
		w.WriteString(flag(r.Categories.Has(Category3)))
		w.WriteString(r.Category4())
		w.WriteString(flag(r.Categories.Has(CategorySupport)))
		w.WriteString(flag(r.SupportOnly))
		csq := Missing
		if len(r.CSQ) > 0 {
			csq = strings.Join(r.CSQ, ",")
		}
		w.WriteString(csq)
		if err = w.EndLine(); err != nil {
			err = errors.E(err, path, r.Key().String())
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return errors.E(err, path)
	}
	return nil
}
