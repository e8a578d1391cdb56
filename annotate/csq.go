package annotate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/aip/variant"
)

// position renders a VEP start/end pair as "start" or "start-end". Zero
// means unknown.
func position(start, end int) string {
	switch {
	case start == 0 || end == 0:
		return ""
	case start == end:
		return strconv.Itoa(start)
	}
	return strconv.Itoa(start) + "-" + strconv.Itoa(end)
}

// prediction renders "pred(score)", or "" if either half is missing.
func prediction(pred string, score *float64) string {
	if pred == "" || score == nil {
		return ""
	}
	return fmt.Sprintf("%s(%.3f)", pred, *score)
}

// csqField returns the value of one CSQ column for transcript t.
func csqField(r *variant.Record, t *variant.Transcript, name string) string {
	switch name {
	case "allele":
		return t.VariantAllele
	case "consequence":
		return strings.Join(t.ConsequenceTerms, "&")
	case "feature_type":
		return "Transcript"
	case "feature", "transcript_id":
		return t.TranscriptID
	case "variant_class":
		if r.Info.VariantClass == variant.Missing {
			return ""
		}
		return r.Info.VariantClass
	case "canonical":
		if t.Canonical == 1 {
			return "YES"
		}
		return ""
	case "ensp", "protein_id":
		return t.ProteinID
	case "gene", "gene_id":
		return t.GeneID
	case "symbol", "gene_symbol":
		return t.GeneSymbol
	case "symbol_source", "gene_symbol_source":
		return t.GeneSymbolSource
	case "biotype":
		return t.Biotype
	case "cdna_position":
		return position(t.CdnaStart, t.CdnaEnd)
	case "cds_position":
		return position(t.CdsStart, t.CdsEnd)
	case "protein_position":
		return position(t.ProteinStart, t.ProteinEnd)
	case "amino_acids":
		return t.AminoAcids
	case "codons":
		return t.Codons
	case "hgvsc":
		return t.HGVSc
	case "hgvsp":
		return t.HGVSp
	case "sift":
		return prediction(t.SiftPrediction, t.SiftScore)
	case "polyphen":
		return prediction(t.PolyphenPrediction, t.PolyphenScore)
	case "mane_select":
		return t.ManeSelect
	case "lof":
		if t.LoF == nil {
			return ""
		}
		return *t.LoF
	}
	if v, ok := t.Extra[name]; ok {
		if s, ok := toString(v); ok {
			return s
		}
	}
	return ""
}

// CSQ renders one '|'-delimited string per transcript of r, with the
// columns named by fields, in the layout of the VEP VCF CSQ INFO field.
// Unknown or missing fields are empty. It returns nil when fields is empty
// or r has no transcripts.
func CSQ(r *variant.Record, fields []string) []string {
	if len(fields) == 0 || len(r.Transcripts) == 0 {
		return nil
	}
	csq := make([]string, 0, len(r.Transcripts))
	vals := make([]string, len(fields))
	for i := range r.Transcripts {
		for j, f := range fields {
			vals[j] = csqField(r, &r.Transcripts[i], f)
		}
		csq = append(csq, strings.Join(vals, "|"))
	}
	return csq
}
