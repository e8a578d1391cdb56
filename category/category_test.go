package category

import (
	"math/rand"
	"testing"

	"github.com/grailbio/aip/config"
	"github.com/grailbio/aip/denovo"
	"github.com/grailbio/aip/panel"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

var testOpts = config.Opts{
	ACThreshold: 0.1,
	AFSemiRare:  0.01,
	CriticalCSQ: []string{"stop_gained", "frameshift_variant", "splice_donor_variant"},
	InSilico:    config.InSilico{CADD: 28.1, REVEL: 0.77, SIFT: 0.0, PolyPhen: 0.99},
}

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func newClassifier(t *testing.T, opts config.Opts, dn denovo.Index) *Classifier {
	p, err := panel.New([]string{"OLD", "NEW"}, []string{"NEW"})
	require.NoError(t, err)
	return New(opts, p, dn)
}

func rec(gene string, txs ...variant.Transcript) *variant.Record {
	return &variant.Record{
		Contig:      "chr1",
		Pos:         55516888,
		Alleles:     []string{"G", "A"},
		GeneID:      gene,
		Transcripts: txs,
		Info: variant.Info{
			ClinvarSig:     variant.Missing,
			MutationTaster: variant.Missing,
		},
	}
}

func missense() variant.Transcript {
	return variant.Transcript{GeneID: "OLD", ConsequenceTerms: []string{"missense_variant"}, LoF: str("LC")}
}

func stopGained(lof *string) variant.Transcript {
	return variant.Transcript{GeneID: "OLD", ConsequenceTerms: []string{"stop_gained"}, LoF: lof}
}

func TestCategory1(t *testing.T) {
	c := newClassifier(t, testOpts, nil)
	r := rec("OLD", missense())
	r.Info.ClinvarStars = 2
	r.Info.ClinvarSig = "Pathogenic"
	expect.True(t, c.Category1(r))

	r.Info.ClinvarSig = "Pathogenic/Conflicting_interpretations"
	expect.False(t, c.Category1(r))

	r.Info.ClinvarSig = "Likely_pathogenic"
	expect.True(t, c.Category1(r))
	r.Info.ClinvarStars = 0
	expect.False(t, c.Category1(r))
}

func TestCategory2(t *testing.T) {
	c := newClassifier(t, testOpts, nil)
	r := rec("NEW", missense())
	expect.False(t, c.Category2(r))
	r.Info.CADD = 30
	expect.True(t, c.Category2(r))
	r.Info.CADD = 0
	r.Info.Revel = 0.8
	expect.True(t, c.Category2(r))
	r.Info.Revel = 0
	r.Info.ClinvarSig = "pathogenic"
	expect.True(t, c.Category2(r))
	r.Info.ClinvarSig = variant.Missing
	r.Transcripts = append(r.Transcripts, stopGained(nil))
	expect.True(t, c.Category2(r))

	// Same evidence in a gene that is not new.
	r.GeneID = "OLD"
	expect.False(t, c.Category2(r))
}

func TestCategory3(t *testing.T) {
	c := newClassifier(t, testOpts, nil)
	expect.False(t, c.Category3(rec("OLD", missense())))
	expect.True(t, c.Category3(rec("OLD", stopGained(str("HC")))))
	expect.True(t, c.Category3(rec("OLD", stopGained(nil))))
	expect.False(t, c.Category3(rec("OLD", stopGained(str("LC")))))
	// Any transcript with HC or no LoF annotation qualifies.
	expect.True(t, c.Category3(rec("OLD", stopGained(str("LC")), variant.Transcript{GeneID: "OLD"})))

	r := rec("OLD", stopGained(str("LC")))
	r.Info.ClinvarSig = "Pathogenic"
	expect.True(t, c.Category3(r))
}

func TestCategory4(t *testing.T) {
	r := rec("OLD", missense())
	dn := denovo.Index{r.Key(): {"S1"}}
	c := newClassifier(t, testOpts, dn)
	c.Classify(r)
	expect.True(t, r.Categories.Has(variant.Category4))
	expect.EQ(t, r.Category4(), "S1")

	other := rec("OLD", missense())
	other.Pos++
	c.Classify(other)
	expect.False(t, other.Categories.Has(variant.Category4))
	expect.EQ(t, other.Category4(), variant.Missing)
}

func TestSupport(t *testing.T) {
	c := newClassifier(t, testOpts, nil)
	r := rec("OLD", missense())
	r.Info.CADD = 30
	expect.False(t, c.Support(r))
	r.Info.Revel = 0.8
	expect.True(t, c.Support(r))

	r = rec("OLD",
		variant.Transcript{GeneID: "OLD", SiftScore: f64(0)},
		variant.Transcript{GeneID: "OLD", PolyphenScore: f64(0.995)},
	)
	expect.True(t, c.Support(r))
	r.Info.MutationTaster = "N,N"
	expect.False(t, c.Support(r))
	r.Info.MutationTaster = "N,D"
	expect.True(t, c.Support(r))

	// A missing SIFT score never passes, whatever the threshold below 1.
	r = rec("OLD", variant.Transcript{GeneID: "OLD", PolyphenScore: f64(1)})
	for _, sift := range []float64{0, 0.05, 0.5, 0.99} {
		opts := testOpts
		opts.InSilico.SIFT = sift
		expect.False(t, newClassifier(t, opts, nil).Support(r), "sift=%v", sift)
	}
	// Nor does a missing PolyPhen score with a positive threshold.
	r = rec("OLD", variant.Transcript{GeneID: "OLD", SiftScore: f64(0)})
	expect.False(t, c.Support(r))
}

func TestSupportOnly(t *testing.T) {
	c := newClassifier(t, testOpts, nil)
	r := rec("OLD", missense())
	r.Info.CADD, r.Info.Revel = 30, 0.9
	c.Classify(r)
	expect.EQ(t, r.Categories, variant.NewCategorySet(variant.CategorySupport))
	expect.True(t, r.SupportOnly)

	r.Info.ClinvarStars, r.Info.ClinvarSig = 1, "Pathogenic"
	c.Classify(r)
	expect.EQ(t, r.Categories, variant.NewCategorySet(variant.Category1, variant.CategorySupport))
	expect.False(t, r.SupportOnly)
}

func randomRecord(rnd *rand.Rand) *variant.Record {
	terms := []string{"stop_gained", "missense_variant", "frameshift_variant", "synonymous_variant"}
	sigs := []string{variant.Missing, "Pathogenic", "Benign", "Pathogenic/Conflicting_interpretations"}
	r := rec([]string{"OLD", "NEW"}[rnd.Intn(2)])
	r.Pos = rnd.Intn(1000)
	r.Info.CADD = rnd.Float64() * 40
	r.Info.Revel = rnd.Float64()
	r.Info.ClinvarStars = rnd.Intn(3)
	r.Info.ClinvarSig = sigs[rnd.Intn(len(sigs))]
	for i := rnd.Intn(3); i >= 0; i-- {
		tx := variant.Transcript{GeneID: r.GeneID, ConsequenceTerms: []string{terms[rnd.Intn(len(terms))]}}
		if rnd.Intn(2) == 0 {
			tx.SiftScore = f64(rnd.Float64() * 0.1)
		}
		if rnd.Intn(2) == 0 {
			tx.PolyphenScore = f64(0.9 + rnd.Float64()*0.1)
		}
		r.Transcripts = append(r.Transcripts, tx)
	}
	return r
}

// Changing the critical consequence set does not change Category1,
// Category4 or Support.
func TestIndependence(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	dn := denovo.Index{}
	var rows []*variant.Record
	for i := 0; i < 500; i++ {
		r := randomRecord(rnd)
		if i%7 == 0 {
			dn[r.Key()] = []string{"S1"}
		}
		rows = append(rows, r)
	}
	other := testOpts
	other.CriticalCSQ = []string{"missense_variant", "synonymous_variant"}
	c1 := newClassifier(t, testOpts, dn)
	c2 := newClassifier(t, other, dn)
	unaffected := variant.NewCategorySet(variant.Category1, variant.Category4, variant.CategorySupport)
	for _, r := range rows {
		a, b := r.Clone(), r.Clone()
		c1.Classify(a)
		c2.Classify(b)
		expect.EQ(t, a.Categories&unaffected, b.Categories&unaffected)
		expect.EQ(t, a.DeNovo, b.DeNovo)
	}
}

func TestApply(t *testing.T) {
	c := newClassifier(t, testOpts, nil)
	keep := rec("OLD", stopGained(nil))
	drop := rec("OLD", missense())
	support := rec("OLD", missense())
	support.Info.CADD, support.Info.Revel = 30, 0.9
	var stats Stats
	out := Apply([]*variant.Record{keep, drop, support}, c, 2, &stats)
	require.Len(t, out, 2)
	expect.EQ(t, out[0], keep)
	expect.EQ(t, out[1], support)
	expect.EQ(t, stats, Stats{Rows: 3, ByCategory: [5]int{0, 0, 1, 0, 1}, SupportOnly: 1, Kept: 2})
	expect.False(t, Categorised(drop))
}
