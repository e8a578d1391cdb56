package variant

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// The input table is JSON Lines. The first line names the samples:
//
//   {"samples": ["S1", "S2", "S3"]}
//
// Every further line is one site:
//
//   {"contig": "chr1", "position": 55516888, "alleles": ["G", "A"],
//    "filters": [], "info": {"AC": 1, "AN": 6}, "gene_ids": ["ENSG..."],
//    "genotypes": {"S1": {"GT": "0/1", "AD": [12, 10], "DP": 22, "GQ": 99}},
//    "gnomad_genomes": {"AF": 0.0001, ...}, "clinvar": {...},
//    "vep": {"transcript_consequences": [...]}, ...}
//
// Keys other than the ones listed in rowFields are kept as nested
// annotation sources in Record.Annotations.

// maxLineLen bounds one JSON line. Heavily annotated sites with many
// transcripts can reach a few hundred kilobytes.
const maxLineLen = 64 << 20

var rowFields = []string{"contig", "position", "alleles", "filters", "info", "gene_ids", "genotypes"}

type tableHeader struct {
	Samples []string `json:"samples"`
}

type jsonCall struct {
	GT string `json:"GT"`
	AD []int  `json:"AD"`
	DP int    `json:"DP"`
	GQ *int   `json:"GQ"`
	PL []int  `json:"PL"`
}

type jsonRow struct {
	Contig   string   `json:"contig"`
	Position int      `json:"position"`
	Alleles  []string `json:"alleles"`
	Filters  []string `json:"filters"`
	Info     struct {
		AC int `json:"AC"`
		AN int `json:"AN"`
	} `json:"info"`
	GeneIDs   []string            `json:"gene_ids"`
	Genotypes map[string]jsonCall `json:"genotypes"`
}

// Reader reads a variant table one row at a time.
type Reader struct {
	sc      *bufio.Scanner
	samples []string
	index   map[string]int
	line    int
	rec     *Record
	err     error
}

// NewReader reads the sample header from r and returns a Reader positioned
// at the first row.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineLen)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.E(errors.Invalid, "variant table: missing sample header")
	}
	var h tableHeader
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
		return nil, errors.E(errors.Invalid, "variant table header", err)
	}
	rd := &Reader{sc: sc, samples: h.Samples, index: map[string]int{}, line: 1}
	for i, s := range h.Samples {
		if _, ok := rd.index[s]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("variant table header: duplicate sample %q", s))
		}
		rd.index[s] = i
	}
	return rd, nil
}

// Samples returns the sample ids, in column order.
func (r *Reader) Samples() []string { return r.samples }

// Scan reads the next row. It returns false at EOF or on error.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	for r.sc.Scan() {
		r.line++
		data := r.sc.Bytes()
		if len(data) == 0 {
			continue
		}
		rec, err := r.parse(data)
		if err != nil {
			r.err = errors.E(errors.Invalid, fmt.Sprintf("variant table line %d", r.line), err)
			return false
		}
		r.rec = rec
		return true
	}
	r.err = r.sc.Err()
	return false
}

// Get returns the row read by the last successful Scan.
func (r *Reader) Get() *Record { return r.rec }

// Err returns the first error encountered by Scan.
func (r *Reader) Err() error { return r.err }

func (r *Reader) parse(data []byte) (*Record, error) {
	var row jsonRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for _, f := range rowFields {
		delete(raw, f)
	}
	rec := &Record{
		Contig:      row.Contig,
		Pos:         row.Position,
		Alleles:     row.Alleles,
		Filters:     row.Filters,
		AC:          row.Info.AC,
		AN:          row.Info.AN,
		GeneIDs:     row.GeneIDs,
		Annotations: raw,
		Calls:       make([]Call, len(r.samples)),
	}
	for i := range rec.Calls {
		rec.Calls[i].GQ = -1
	}
	for sample, c := range row.Genotypes {
		idx, ok := r.index[sample]
		if !ok {
			return nil, fmt.Errorf("genotype for sample %q not in header", sample)
		}
		call := Call{GT: ParseGenotype(c.GT), AD: c.AD, DP: c.DP, GQ: -1, PL: c.PL}
		if c.GQ != nil {
			call.GQ = *c.GQ
		}
		rec.Calls[idx] = call
	}
	return rec, nil
}

// ReadTable reads a whole table from path. Compressed inputs (.gz, .bz2,
// .zst) are decompressed transparently.
func ReadTable(ctx context.Context, path string) (tbl *Table, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open variant table", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var rd io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(rd, in.Name()); u != nil {
		defer u.Close() // nolint: errcheck
		rd = u
	}
	r, err := NewReader(rd)
	if err != nil {
		return nil, errors.E(err, path)
	}
	tbl = &Table{Samples: r.Samples()}
	for r.Scan() {
		tbl.Rows = append(tbl.Rows, r.Get())
	}
	if err = r.Err(); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("Read %d rows, %d samples from %s", len(tbl.Rows), len(tbl.Samples), path)
	return tbl, nil
}
