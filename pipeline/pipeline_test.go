package pipeline

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/aip/codon"
	"github.com/grailbio/aip/comphet"
	"github.com/grailbio/aip/config"
	"github.com/grailbio/aip/panel"
	"github.com/grailbio/aip/pedigree"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const testConfig = `{
  "filter": {
    "af_semi_rare": 0.01,
    "critical_csq": ["stop_gained", "frameshift_variant"],
    "useless_csq": ["synonymous_variant"],
    "in_silico": {"cadd": 28.1, "revel": 0.77, "sift": 0.0, "polyphen": 0.99},
    "ref_genome": "GRCh38"
  },
  "variant_object": {"csq_string": ["allele", "consequence", "gene"]}
}`

const testFam = "FAM\tKID\tDAD\tMOM\t1\t2\n" +
	"FAM\tDAD\t0\t0\t1\t1\n" +
	"FAM\tMOM\t0\t0\t2\t1\n"

const (
	het    = `{"GT": "0/1", "AD": [15, 15], "DP": 30, "GQ": 99, "PL": [400, 0, 400]}`
	homRef = `{"GT": "0/0", "AD": [30, 0], "DP": 30, "GQ": 99, "PL": [0, 99, 990]}`
)

func tx(gene, csq, extra string) string {
	return `{"vep": {"transcript_consequences": [{"gene_id": "` + gene + `", "biotype": "protein_coding", "variant_allele": "ALT", "consequence_terms": ["` + csq + `"]` + extra + `}]}}`
}

func site(contig string, pos int, ref, alt, gene, filters, genotypes, annotations string) string {
	s := `{"contig": "` + contig + `", "position": ` + itoa(pos) + `, "alleles": ["` + ref + `", "` + alt + `"], ` +
		`"filters": [` + filters + `], "info": {"AC": 1, "AN": 100}, "gene_ids": ["` + gene + `"], ` +
		`"genotypes": {` + genotypes + `}, ` +
		strings.TrimPrefix(strings.Replace(annotations, "ALT", alt, 1), "{")
	return s
}

func itoa(n int) string {
	var b []byte
	for ; n > 0; n /= 10 {
		b = append([]byte{byte('0' + n%10)}, b...)
	}
	return string(b)
}

func gts(kid, dad, mom, s4 string) string {
	return `"KID": ` + kid + `, "DAD": ` + dad + `, "MOM": ` + mom + `, "S4": ` + s4
}

func testTable() string {
	lines := []string{
		`{"samples": ["KID", "DAD", "MOM", "S4"]}`,
		// De novo stop gain in KID.
		site("chr17", 100, "C", "T", "G1", "", gts(het, homRef, homRef, het),
			tx("G1", "stop_gained", `, "lof": "HC"`)),
		// Inherited support-only missense.
		site("chr17", 200, "C", "T", "G1", "", gts(het, het, homRef, het),
			`{"cadd": {"PHRED": 30}, "dbnsfp": {"REVEL_score": 0.9}, `+tx("G1", "missense_variant", `, "protein_id": "ENSP1", "protein_start": 42`)[1:]),
		// Uncategorised.
		site("chr17", 300, "C", "T", "G1", "", gts(homRef, homRef, homRef, het),
			tx("G1", "missense_variant", "")),
		// ClinVar pathogenic in a new gene.
		site("chr2", 50, "A", "G", "G2", "", gts(homRef, homRef, homRef, het),
			`{"clinvar": {"clinical_significance": "Pathogenic", "gold_stars": 2}, `+tx("G2", "missense_variant", "")[1:]),
		// Off panel.
		site("chr3", 10, "A", "G", "G3", "", gts(het, homRef, homRef, het),
			tx("G3", "stop_gained", "")),
		// Flagged upstream.
		site("chr17", 400, "C", "T", "G1", `"VQSRTrancheSNP"`, gts(het, homRef, homRef, het),
			tx("G1", "stop_gained", "")),
	}
	return strings.Join(lines, "\n") + "\n"
}

const wantSummary = "#CHROM\tPOS\tREF\tALT\tGENE\tCategory1\tCategory2\tCategory3\tCategory4\tCategorySupport\tsupport_only\tCSQ\n" +
	"chr2\t50\tA\tG\tG2\t1\t1\t0\tmissing\t0\t0\tG|missense_variant|G2\n" +
	"chr17\t100\tC\tT\tG1\t0\t0\t1\tKID\t0\t0\tT|stop_gained|G1\n" +
	"chr17\t200\tC\tT\tG1\t0\t0\t0\tmissing\t1\t1\tT|missense_variant|G1\n"

func testInput(t *testing.T) (Input, Opts) {
	r, err := variant.NewReader(strings.NewReader(testTable()))
	require.NoError(t, err)
	tbl := &variant.Table{Samples: r.Samples()}
	for r.Scan() {
		tbl.Rows = append(tbl.Rows, r.Get())
	}
	require.NoError(t, r.Err())
	require.Len(t, tbl.Rows, 6)

	p, err := panel.New([]string{"G1", "G2"}, []string{"G2"})
	require.NoError(t, err)
	ped, err := pedigree.Parse(strings.NewReader(testFam))
	require.NoError(t, err)
	cfg, err := config.Parse([]byte(testConfig), false)
	require.NoError(t, err)

	opts := DefaultOpts
	opts.Config = cfg
	return Input{Table: tbl, Panel: p, Pedigree: ped}, opts
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	in, opts := testInput(t)
	res, err := Run(ctx, in, opts)
	require.NoError(t, err)

	expect.EQ(t, res.Stats.QC.Flagged, 1)
	expect.EQ(t, res.Stats.PopFilter.AfterGreen, 4)
	expect.EQ(t, res.Stats.DeNovo.High, 1)
	expect.EQ(t, res.Stats.Category.Kept, 3)
	expect.EQ(t, res.Stats.Category.SupportOnly, 1)
	require.Len(t, res.Table.Rows, 3)

	want := comphet.Pairs{
		"KID": {"G1": {"17-100-C-T": {"17-200-C-T"}, "17-200-C-T": {"17-100-C-T"}}},
		"S4":  {"G1": {"17-100-C-T": {"17-200-C-T"}, "17-200-C-T": {"17-100-C-T"}}},
	}
	expect.EQ(t, res.Pairs, want)

	// The input table is not modified.
	expect.EQ(t, len(in.Table.Rows), 6)
	expect.True(t, in.Table.Rows[0].Annotations != nil)
	expect.True(t, in.Table.Rows[0].Categories.Empty())
}

func writeAll(t *testing.T, ctx context.Context, res *Result, dir string) map[string]string {
	out := Outputs{
		Table:   filepath.Join(dir, "table.jsonl"),
		Summary: filepath.Join(dir, "summary.tsv"),
		Pairs:   filepath.Join(dir, "pairs.json"),
	}
	assert.NoError(t, res.Write(ctx, out, 2))
	files := map[string]string{}
	for _, path := range []string{out.Table, out.Summary, out.Pairs} {
		data, err := ioutil.ReadFile(path)
		assert.NoError(t, err)
		files[filepath.Base(path)] = string(data)
	}
	return files
}

func TestIdempotent(t *testing.T) {
	ctx := context.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in, opts := testInput(t)

	var runs []map[string]string
	for i, parallelism := range []int{1, 1, 4} {
		opts.Parallelism = parallelism
		res, err := Run(ctx, in, opts)
		require.NoError(t, err)
		dir := filepath.Join(tmpdir, itoa(i+1))
		runs = append(runs, writeAll(t, ctx, res, dir))
	}
	expect.EQ(t, runs[0]["summary.tsv"], wantSummary)
	expect.HasSubstr(t, runs[0]["table.jsonl"], `"category4":"KID"`)
	for _, r := range runs[1:] {
		expect.EQ(t, r, runs[0])
	}
}

func TestCheckpoint(t *testing.T) {
	ctx := context.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in, opts := testInput(t)
	opts.CheckpointOutput = filepath.Join(tmpdir, "filtered.rio")
	res, err := Run(ctx, in, opts)
	require.NoError(t, err)
	first := writeAll(t, ctx, res, filepath.Join(tmpdir, "first"))

	resumeOpts := opts
	resumeOpts.CheckpointOutput = ""
	resumeOpts.CheckpointInput = opts.CheckpointOutput
	res, err = Run(ctx, Input{Pedigree: in.Pedigree}, resumeOpts)
	require.NoError(t, err)
	expect.EQ(t, writeAll(t, ctx, res, filepath.Join(tmpdir, "second")), first)

	// New thresholds apply to the checkpointed rows.
	resumeOpts.Config.InSilico.CADD = 40
	res, err = Run(ctx, Input{Pedigree: in.Pedigree}, resumeOpts)
	require.NoError(t, err)
	expect.EQ(t, res.Stats.Category.Kept, 2)
}

func TestCodonMatches(t *testing.T) {
	ctx := context.Background()
	in, opts := testInput(t)
	in.Codon = codon.Index{
		codon.Key("ENSP1", 42): {"1001::2", "1002::1"},
		codon.Key("ENSP1", 43): {"1003::2"},
	}
	res, err := Run(ctx, in, opts)
	require.NoError(t, err)
	require.Len(t, res.Table.Rows, 3)
	for _, r := range res.Table.Rows {
		if r.Pos == 200 {
			expect.EQ(t, r.ClinvarCodon, []string{"1001::2", "1002::1"})
		} else {
			expect.EQ(t, len(r.ClinvarCodon), 0)
		}
	}
	expect.EQ(t, len(in.Table.Rows[1].ClinvarCodon), 0)
}

func TestCheckpointZeroScores(t *testing.T) {
	ctx := context.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in, opts := testInput(t)
	r, err := variant.NewReader(strings.NewReader(strings.Join([]string{
		`{"samples": ["KID", "DAD", "MOM", "S4"]}`,
		site("chr17", 500, "C", "T", "G1", "", gts(homRef, homRef, homRef, het),
			tx("G1", "missense_variant", `, "sift_score": 0.0, "polyphen_score": 1.0`)),
	}, "\n") + "\n"))
	require.NoError(t, err)
	in.Table = &variant.Table{Samples: r.Samples()}
	for r.Scan() {
		in.Table.Rows = append(in.Table.Rows, r.Get())
	}
	require.NoError(t, r.Err())

	opts.CheckpointOutput = filepath.Join(tmpdir, "filtered.rio")
	direct, err := Run(ctx, in, opts)
	require.NoError(t, err)
	expect.EQ(t, direct.Stats.Category.Kept, 1)
	expect.EQ(t, direct.Stats.Category.SupportOnly, 1)

	opts.CheckpointInput, opts.CheckpointOutput = opts.CheckpointOutput, ""
	resumed, err := Run(ctx, Input{}, opts)
	require.NoError(t, err)
	expect.EQ(t, resumed.Stats.Category, direct.Stats.Category)
	require.Len(t, resumed.Table.Rows, 1)
	expect.True(t, resumed.Table.Rows[0].Categories.Has(variant.CategorySupport))
}

func TestErrors(t *testing.T) {
	ctx := context.Background()

	in, opts := testInput(t)
	opts.Config.AFSemiRare = 0
	_, err := Run(ctx, in, opts)
	require.Error(t, err)
	expect.EQ(t, Stage(err), "config")

	in, opts = testInput(t)
	in.Panel = nil
	_, err = Run(ctx, in, opts)
	require.Error(t, err)
	expect.EQ(t, Stage(err), "panel")

	in, opts = testInput(t)
	in.Table.Rows[2].Calls = in.Table.Rows[2].Calls[:2]
	_, err = Run(ctx, in, opts)
	require.Error(t, err)
	expect.EQ(t, Stage(err), "input")
	expect.HasSubstr(t, err.Error(), "chr17:300 C>T")

	in, opts = testInput(t)
	opts.CheckpointInput = "/nonexistent/checkpoint.rio"
	_, err = Run(ctx, in, opts)
	require.Error(t, err)
	expect.EQ(t, Stage(err), "checkpoint")
}
