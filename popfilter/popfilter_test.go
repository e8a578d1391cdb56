package popfilter

import (
	"testing"

	"github.com/grailbio/aip/panel"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func tx(gene, biotype, mane string, csq ...string) variant.Transcript {
	return variant.Transcript{GeneID: gene, Biotype: biotype, ManeSelect: mane, ConsequenceTerms: csq}
}

func rec(pos int, genes []string, txs ...variant.Transcript) *variant.Record {
	return &variant.Record{
		Contig:      "chr1",
		Pos:         pos,
		Alleles:     []string{"A", "G"},
		GeneIDs:     genes,
		Transcripts: txs,
		Info:        variant.Info{ClinvarSig: variant.Missing},
	}
}

var opts = Opts{
	AFSemiRare:  0.01,
	UselessCSQ:  []string{"synonymous_variant", "intron_variant"},
	Parallelism: 2,
}

func TestRareAndBenign(t *testing.T) {
	r := rec(1, nil)
	expect.True(t, IsRare(r, 0.01))
	r.Info.GnomadAF = 0.01
	expect.False(t, IsRare(r, 0.01))
	r.Info.GnomadAF = 0
	r.Info.ExacAF = 0.02
	expect.False(t, IsRare(r, 0.01))

	r = rec(1, nil)
	r.Info.ClinvarSig = "Likely_Benign"
	expect.False(t, IsConfidentBenign(r))
	r.Info.ClinvarStars = 1
	expect.True(t, IsConfidentBenign(r))
	r.Info.ClinvarSig = "Pathogenic"
	expect.False(t, IsConfidentBenign(r))
}

func TestApply(t *testing.T) {
	p, err := panel.New([]string{"G1", "G2"}, nil)
	require.NoError(t, err)

	common := rec(1, []string{"G1"}, tx("G1", "protein_coding", "", "missense_variant"))
	common.Info.GnomadAF = 0.05
	benign := rec(2, []string{"G1"}, tx("G1", "protein_coding", "", "missense_variant"))
	benign.Info.ClinvarSig = "Benign"
	benign.Info.ClinvarStars = 2
	unstarred := rec(3, []string{"G1"}, tx("G1", "protein_coding", "", "missense_variant"))
	unstarred.Info.ClinvarSig = "Benign"
	multi := rec(4, []string{"G1", "G2", "G3", "G1"},
		tx("G1", "protein_coding", "", "missense_variant"),
		tx("G2", "protein_coding", "", "synonymous_variant"),
		tx("G2", "nonsense_mediated_decay", "NM_0001.1", "stop_gained"),
		tx("G3", "protein_coding", "", "stop_gained"),
	)
	notGreen := rec(5, []string{"G3"}, tx("G3", "protein_coding", "", "stop_gained"))
	onlyUseless := rec(6, []string{"G1"},
		tx("G1", "protein_coding", "", "intron_variant", "synonymous_variant"),
		tx("G1", "lncRNA", "", "missense_variant"),
	)

	var stats Stats
	out := Apply([]*variant.Record{common, benign, unstarred, multi, notGreen, onlyUseless}, opts, p, &stats)

	type result struct {
		Pos  int
		Gene string
		N    int
	}
	var got []result
	for _, r := range out {
		got = append(got, result{r.Pos, r.GeneID, len(r.Transcripts)})
		for _, tx := range r.Transcripts {
			expect.EQ(t, tx.GeneID, r.GeneID)
		}
	}
	expect.EQ(t, got, []result{{3, "G1", 1}, {4, "G1", 1}, {4, "G2", 1}})
	expect.EQ(t, out[2].Transcripts[0].ConsequenceTerms, []string{"stop_gained"})
	expect.EQ(t, stats, Stats{
		Rows:               6,
		AfterRare:          5,
		AfterBenign:        4,
		AfterGreen:         4,
		AfterConsequence:   3,
		TranscriptsDropped: 3 + 3 + 2,
	})
	// The input row is not changed by explosion.
	expect.EQ(t, multi.GeneID, "")
	expect.EQ(t, len(multi.Transcripts), 4)
}
