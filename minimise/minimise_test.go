package minimise

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/aip/comphet"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func row(pos int, gene string, cats variant.CategorySet, gts ...variant.Genotype) *variant.Record {
	r := &variant.Record{
		Contig:      "chr1",
		Pos:         pos,
		Alleles:     []string{"A", "G"},
		GeneID:      gene,
		Categories:  cats,
		SupportOnly: cats == variant.NewCategorySet(variant.CategorySupport),
	}
	for _, gt := range gts {
		r.Calls = append(r.Calls, variant.Call{GT: gt, GQ: -1})
	}
	return r
}

var (
	c1      = variant.Category1
	c2      = variant.Category2
	c3      = variant.Category3
	support = variant.CategorySupport
	set     = variant.NewCategorySet
)

func testTable() *variant.Table {
	return &variant.Table{
		Samples: []string{"S1", "S2"},
		Rows: []*variant.Record{
			row(10, "G1", set(c3), variant.Het, variant.HomRef),
			row(20, "G1", set(support), variant.Het, variant.Het),
			row(30, "G2", set(c2, support), variant.HomAlt, variant.NoCall),
			row(40, "G2", set(c1, c2, support), variant.Het, variant.HomRef),
			// The same site scoped to a second gene.
			row(10, "G3", set(c1), variant.Het, variant.HomRef),
		},
	}
}

var testPairs = comphet.Pairs{
	"S1": {"G1": {"1-10-A-G": {"1-20-A-G"}, "1-20-A-G": {"1-10-A-G"}}},
}

func TestMinimise(t *testing.T) {
	var stats Stats
	out := Minimise(testTable(), testPairs, Opts{}, &stats)
	expect.EQ(t, len(out.Results), 1)
	expect.EQ(t, out.Results["S1"], map[string]*Variant{
		"1-10-A-G": {Categories: []string{"1", "3"}, SupportVars: []string{"1-20-A-G"}, Independent: true},
		"1-20-A-G": {Categories: []string{"support"}, SupportVars: []string{"1-10-A-G"}, Independent: false},
		"1-30-A-G": {Categories: []string{"2", "support"}, SupportVars: []string{}, Independent: true},
		"1-40-A-G": {Categories: []string{"1", "2", "support"}, SupportVars: []string{}, Independent: true},
	})
	// S2's support-only het has no partner.
	expect.EQ(t, stats, Stats{Calls: 5, Unpaired: 1, Kept: 4})
	expect.EQ(t, len(out.Metadata.Categories), 5)
}

func TestExclude(t *testing.T) {
	var stats Stats
	out := Minimise(testTable(), testPairs, Opts{Exclude: []variant.Category{c2}, Mode: ExactMatch}, &stats)
	// {2, support} is removed; {1, 2, support} is kept without 2.
	_, ok := out.Results["S1"]["1-30-A-G"]
	expect.False(t, ok)
	expect.EQ(t, out.Results["S1"]["1-40-A-G"].Categories, []string{"1", "support"})
	expect.EQ(t, stats.Excluded, 1)
	_, ok = out.Metadata.Categories["2"]
	expect.False(t, ok)

	out = Minimise(testTable(), testPairs, Opts{Exclude: []variant.Category{c2}, Mode: AnyMember}, &stats)
	_, ok = out.Results["S1"]["1-40-A-G"]
	expect.False(t, ok)
	expect.EQ(t, stats.Excluded, 2)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	assert.NoError(t, err)
	expect.EQ(t, m, ExactMatch)
	m, err = ParseMode("any")
	assert.NoError(t, err)
	expect.EQ(t, m, AnyMember)
	_, err = ParseMode("subset")
	expect.HasSubstr(t, err.Error(), "unknown exclusion mode")
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	tablePath := filepath.Join(tmpdir, "table.jsonl.gz")
	assert.NoError(t, variant.WriteJSON(ctx, tablePath, testTable()))
	tbl, err := ReadTable(ctx, tablePath)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 5)
	want := Minimise(testTable(), testPairs, Opts{}, nil)
	got := Minimise(tbl, testPairs, Opts{}, nil)
	expect.EQ(t, got, want)

	outPath := filepath.Join(tmpdir, "seqr.json")
	assert.NoError(t, got.Write(ctx, outPath))
	data, err := ioutil.ReadFile(outPath)
	assert.NoError(t, err)
	expect.HasSubstr(t, string(data), `"support_vars": [
                    "1-20-A-G"
                ]`)
	expect.HasSubstr(t, string(data), `"4": "De Novo"`)
}
