package variant

import "strings"

// Missing is the placeholder for a categorical annotation with no value.
const Missing = "missing"

// Info holds the flat, per-variant annotations extracted from the nested
// annotation sources. Missing values are replaced with sentinels chosen so
// that they never pass a threshold by accident: 0 for frequencies, counts
// and scores, Missing for categorical strings.
type Info struct {
	ExacAF     float64 `json:"exac_af"`
	ExacACHet  int     `json:"exac_ac_het"`
	ExacACHom  int     `json:"exac_ac_hom"`
	ExacACHemi int     `json:"exac_ac_hemi"`

	GnomadExCov float64 `json:"gnomad_ex_cov"`
	GnomadExAF  float64 `json:"gnomad_ex_af"`
	GnomadExAN  int     `json:"gnomad_ex_an"`
	GnomadExAC  int     `json:"gnomad_ex_ac"`
	GnomadExHom int     `json:"gnomad_ex_hom"`

	GnomadCov float64 `json:"gnomad_cov"`
	GnomadAF  float64 `json:"gnomad_af"`
	GnomadAN  int     `json:"gnomad_an"`
	GnomadAC  int     `json:"gnomad_ac"`
	GnomadHom int     `json:"gnomad_hom"`

	SpliceAIDelta float64 `json:"splice_ai_delta"`
	SpliceAICsq   string  `json:"splice_ai_csq"`

	Revel      float64 `json:"revel"`
	CADD       float64 `json:"cadd"`
	EigenPhred float64 `json:"eigen_phred"`
	PhastCons  float64 `json:"phast_cons"`
	GerpRS     float64 `json:"gerp_rs"`

	ClinvarSig      string `json:"clinvar_sig"`
	ClinvarStars    int    `json:"clinvar_stars"`
	ClinvarAlleleID string `json:"clinvar_allele_id"`

	MutationTaster string `json:"mutationtaster"`
	FATHMM         string `json:"fathmm"`
	MetaSVM        string `json:"metasvm"`

	VariantClass string `json:"variant_class"`
}

// Transcript is one VEP transcript consequence. Nullable predictor scores
// are pointers so that "absent" survives until a rule decides how to treat
// it.
type Transcript struct {
	GeneID           string   `json:"gene_id" mapstructure:"gene_id"`
	GeneSymbol       string   `json:"gene_symbol" mapstructure:"gene_symbol"`
	GeneSymbolSource string   `json:"gene_symbol_source" mapstructure:"gene_symbol_source"`
	TranscriptID     string   `json:"transcript_id" mapstructure:"transcript_id"`
	ProteinID        string   `json:"protein_id" mapstructure:"protein_id"`
	Biotype          string   `json:"biotype" mapstructure:"biotype"`
	ConsequenceTerms []string `json:"consequence_terms" mapstructure:"consequence_terms"`
	Canonical        int      `json:"canonical" mapstructure:"canonical"`
	ManeSelect       string   `json:"mane_select" mapstructure:"mane_select"`
	VariantAllele    string   `json:"variant_allele" mapstructure:"variant_allele"`

	SiftScore          *float64 `json:"sift_score" mapstructure:"sift_score"`
	SiftPrediction     string   `json:"sift_prediction" mapstructure:"sift_prediction"`
	PolyphenScore      *float64 `json:"polyphen_score" mapstructure:"polyphen_score"`
	PolyphenPrediction string   `json:"polyphen_prediction" mapstructure:"polyphen_prediction"`
	// LoF is the LOFTEE confidence ("HC", "LC"), nil when not annotated.
	LoF *string `json:"lof" mapstructure:"lof"`

	CdnaStart    int    `json:"cdna_start" mapstructure:"cdna_start"`
	CdnaEnd      int    `json:"cdna_end" mapstructure:"cdna_end"`
	CdsStart     int    `json:"cds_start" mapstructure:"cds_start"`
	CdsEnd       int    `json:"cds_end" mapstructure:"cds_end"`
	ProteinStart int    `json:"protein_start" mapstructure:"protein_start"`
	ProteinEnd   int    `json:"protein_end" mapstructure:"protein_end"`
	AminoAcids   string `json:"amino_acids" mapstructure:"amino_acids"`
	Codons       string `json:"codons" mapstructure:"codons"`
	HGVSc        string `json:"hgvsc" mapstructure:"hgvsc"`
	HGVSp        string `json:"hgvsp" mapstructure:"hgvsp"`

	// Extra holds the remaining VEP fields, for CSQ export.
	Extra map[string]interface{} `json:"-" mapstructure:",remain"`
}

// HasConsequence reports whether any of the transcript's consequence terms
// is in set.
func (t *Transcript) HasConsequence(set map[string]struct{}) bool {
	for _, c := range t.ConsequenceTerms {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

// Record is one row of the variant table: a site, optionally scoped to a
// single gene, with one genotype call per sample.
type Record struct {
	Contig  string   `json:"contig"`
	Pos     int      `json:"position"`
	Alleles []string `json:"alleles"`
	// Filters holds the upstream quality flags; empty means PASS.
	Filters []string `json:"filters,omitempty"`
	AC      int      `json:"ac"`
	AN      int      `json:"an"`

	// GeneIDs lists every gene the site overlaps. GeneID is set once the row
	// has been exploded to a single gene.
	GeneIDs []string `json:"gene_ids,omitempty"`
	GeneID  string   `json:"gene_id,omitempty"`

	// Annotations holds the raw nested annotation sources. The flattener
	// moves them into Info and Transcripts and drops them.
	Annotations map[string]interface{} `json:"-"`

	Info        Info         `json:"info"`
	Transcripts []Transcript `json:"transcript_consequences"`
	Calls       []Call       `json:"-"`

	Categories CategorySet `json:"-"`
	// DeNovo lists the samples with a high-confidence de novo call at this
	// site (Category4).
	DeNovo      []string `json:"-"`
	SupportOnly bool     `json:"-"`
	CSQ         []string `json:"csq,omitempty"`
	// ClinvarCodon lists the ClinVar pathogenic alleles ("allele_id::stars")
	// at the residues this row changes.
	ClinvarCodon []string `json:"clinvar_codon,omitempty"`
}

// Key returns the site key. It must only be called on rows with two
// alleles.
func (r *Record) Key() Key {
	return Key{Contig: r.Contig, Pos: r.Pos, Ref: r.Alleles[0], Alt: r.Alleles[1]}
}

// Clone returns a copy of r whose slices can be modified without affecting
// r. Annotations are shared; they are treated as read-only.
func (r *Record) Clone() *Record {
	c := *r
	c.Alleles = append([]string(nil), r.Alleles...)
	c.Filters = append([]string(nil), r.Filters...)
	c.GeneIDs = append([]string(nil), r.GeneIDs...)
	c.Transcripts = append([]Transcript(nil), r.Transcripts...)
	c.Calls = append([]Call(nil), r.Calls...)
	c.DeNovo = append([]string(nil), r.DeNovo...)
	c.CSQ = append([]string(nil), r.CSQ...)
	c.ClinvarCodon = append([]string(nil), r.ClinvarCodon...)
	return &c
}

// Table is a set of rows sharing one sample list.
type Table struct {
	Samples []string
	Rows    []*Record
}

// Clone deep-copies the table so that a pipeline run cannot modify its
// input.
func (t *Table) Clone() *Table {
	c := &Table{
		Samples: append([]string(nil), t.Samples...),
		Rows:    make([]*Record, len(t.Rows)),
	}
	for i, r := range t.Rows {
		c.Rows[i] = r.Clone()
	}
	return c
}

// SampleIndex maps sample ids to their column in Record.Calls.
func (t *Table) SampleIndex() map[string]int {
	m := make(map[string]int, len(t.Samples))
	for i, s := range t.Samples {
		m[s] = i
	}
	return m
}

// Category4 renders the de novo samples as a comma-joined list, or Missing.
func (r *Record) Category4() string {
	if len(r.DeNovo) == 0 {
		return Missing
	}
	return strings.Join(r.DeNovo, ",")
}
