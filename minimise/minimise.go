// Package minimise reduces a categorised table and its compound-het pairs
// to the per-sample summary loaded by the seqr front end.
package minimise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/grailbio/aip/comphet"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Mode selects how excluded categories remove a variant.
type Mode int

const (
	// ExactMatch removes a variant whose categories are exactly {c} or
	// {c, support} for an excluded c. Variants carrying another category
	// are kept, with c removed.
	ExactMatch Mode = iota
	// AnyMember removes a variant carrying any excluded category.
	AnyMember
)

// ParseMode parses "exact" or "any".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "exact", "":
		return ExactMatch, nil
	case "any":
		return AnyMember, nil
	}
	return 0, fmt.Errorf("unknown exclusion mode %q, expect exact or any", s)
}

// Descriptions holds the label of each category.
var Descriptions = map[variant.Category]string{
	variant.Category1:       "ClinVar Pathogenic",
	variant.Category2:       "New Gene-Disease Association",
	variant.Category3:       "High Impact Variant",
	variant.Category4:       "De Novo",
	variant.CategorySupport: "High in Silico Scores",
}

// Opts controls Minimise.
type Opts struct {
	Exclude []variant.Category
	Mode    Mode
}

// Variant is the summary of one variant for one sample.
type Variant struct {
	Categories  []string `json:"categories"`
	SupportVars []string `json:"support_vars"`
	// Independent is false for support-only variants, which are only
	// reportable next to a partner.
	Independent bool `json:"independent"`
}

// Metadata describes the categories present in Results.
type Metadata struct {
	Categories map[string]string `json:"categories"`
}

// Output is the minimised representation.
type Output struct {
	Metadata Metadata                       `json:"metadata"`
	Results  map[string]map[string]*Variant `json:"results"`
}

// Stats counts the variants Minimise considered.
type Stats struct {
	// Calls counts the (sample, variant) pairs seen.
	Calls    int
	Excluded int
	// Unpaired counts support-only variants without a partner.
	Unpaired int
	Kept     int
}

type entry struct {
	cats        variant.CategorySet
	supportOnly bool
}

// excluded reports whether a variant with categories s is removed.
func (o *Opts) excluded(s variant.CategorySet) bool {
	for _, c := range o.Exclude {
		switch o.Mode {
		case ExactMatch:
			if s == variant.NewCategorySet(c) || s == variant.NewCategorySet(c, variant.CategorySupport) {
				return true
			}
		case AnyMember:
			if s.Has(c) {
				return true
			}
		}
	}
	return false
}

// Minimise builds the summary. Each sample with a non-reference call on a
// categorised row gets an entry for that variant. A variant seen on
// several rows (one per gene) is merged: categories are joined and it is
// support-only if every row is. Support-only variants without a
// compound-het partner are dropped.
func Minimise(tbl *variant.Table, pairs comphet.Pairs, opts Opts, stats *Stats) *Output {
	var s Stats
	// entries[sample][variant]
	entries := map[string]map[string]*entry{}
	for _, r := range tbl.Rows {
		if len(r.Alleles) != 2 || r.Categories.Empty() {
			continue
		}
		v := r.Key().Canonical()
		for i, c := range r.Calls {
			if c.GT != variant.Het && c.GT != variant.HomAlt {
				continue
			}
			sample := tbl.Samples[i]
			if entries[sample] == nil {
				entries[sample] = map[string]*entry{}
			}
			e, ok := entries[sample][v]
			if !ok {
				e = &entry{supportOnly: true}
				entries[sample][v] = e
			}
			e.cats |= r.Categories
			e.supportOnly = e.supportOnly && r.SupportOnly
		}
	}

	var excludeSet variant.CategorySet
	for _, c := range opts.Exclude {
		excludeSet = excludeSet.With(c)
	}
	out := &Output{
		Metadata: Metadata{Categories: map[string]string{}},
		Results:  map[string]map[string]*Variant{},
	}
	for c, d := range Descriptions {
		if !excludeSet.Has(c) {
			out.Metadata.Categories[c.String()] = d
		}
	}
	for sample, vars := range entries {
		for v, e := range vars {
			s.Calls++
			if opts.excluded(e.cats) {
				s.Excluded++
				continue
			}
			partners := pairs.Partners(sample, v)
			if e.supportOnly && len(partners) == 0 {
				s.Unpaired++
				continue
			}
			if partners == nil {
				partners = []string{}
			}
			cats := e.cats.Without(excludeSet).Strings()
			if cats == nil {
				cats = []string{}
			}
			if out.Results[sample] == nil {
				out.Results[sample] = map[string]*Variant{}
			}
			out.Results[sample][v] = &Variant{
				Categories:  cats,
				SupportVars: partners,
				Independent: !e.supportOnly,
			}
			s.Kept++
		}
	}
	log.Printf("Stats: minimise: %+v", s)
	if stats != nil {
		*stats = s
	}
	return out
}

// Write writes o as indented JSON.
func (o *Output) Write(ctx context.Context, path string) (err error) {
	out, err := variant.CreateOutput(ctx, path, 1)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	data, err := json.MarshalIndent(o, "", "    ")
	if err != nil {
		return errors.E(err, path)
	}
	if _, err = out.Writer().Write(append(data, '\n')); err != nil {
		return errors.E(err, path)
	}
	return nil
}

// resultRow is the subset of a categorised table row that Minimise needs.
type resultRow struct {
	Contig      string   `json:"contig"`
	Position    int      `json:"position"`
	Alleles     []string `json:"alleles"`
	GeneID      string   `json:"gene_id"`
	Categories  []string `json:"categories"`
	SupportOnly bool     `json:"support_only"`
	Genotypes   map[string]struct {
		GT string `json:"GT"`
	} `json:"genotypes"`
}

// ReadTable reads the categories and genotypes of a categorised table
// written by variant.WriteJSON.
func ReadTable(ctx context.Context, path string) (tbl *variant.Table, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open categorised table", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var rd io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(rd, in.Name()); u != nil {
		defer u.Close() // nolint: errcheck
		rd = u
	}
	if tbl, err = readTable(rd); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("Read %d categorised rows from %s", len(tbl.Rows), path)
	return tbl, nil
}

func readTable(r io.Reader) (*variant.Table, error) {
	dec := json.NewDecoder(r)
	var h struct {
		Samples []string `json:"samples"`
	}
	if err := dec.Decode(&h); err != nil {
		return nil, errors.E(errors.Invalid, "categorised table header", err)
	}
	tbl := &variant.Table{Samples: h.Samples}
	index := tbl.SampleIndex()
	for line := 2; ; line++ {
		var row resultRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, fmt.Sprintf("categorised table row %d", line), err)
		}
		rec := &variant.Record{
			Contig:      row.Contig,
			Pos:         row.Position,
			Alleles:     row.Alleles,
			GeneID:      row.GeneID,
			SupportOnly: row.SupportOnly,
			Calls:       make([]variant.Call, len(tbl.Samples)),
		}
		for _, name := range row.Categories {
			c, err := variant.ParseCategory(name)
			if err != nil {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("categorised table row %d", line), err)
			}
			rec.Categories = rec.Categories.With(c)
		}
		for sample, c := range row.Genotypes {
			i, ok := index[sample]
			if !ok {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("categorised table row %d: unknown sample %q", line, sample))
			}
			rec.Calls[i] = variant.Call{GT: variant.ParseGenotype(c.GT), GQ: -1}
		}
		tbl.Rows = append(tbl.Rows, rec)
	}
	return tbl, nil
}
