// Package codon indexes ClinVar pathogenic missense variants by the protein
// residue they change, so that a new missense variant can be matched to
// known pathogenic changes at the same codon.
package codon

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

const (
	missense  = "missense_variant"
	sep       = "::"
	entrySep  = "+"
	indexHead = "#residue\tclinvar_alleles"
)

// Index maps "protein_id::protein_start" to the sorted, distinct ClinVar
// entries "allele_id::gold_stars" at that residue.
type Index map[string][]string

// Key returns the index key of a residue.
func Key(proteinID string, start int) string {
	return proteinID + sep + strconv.Itoa(start)
}

// Stats counts the rows and transcripts Build used.
type Stats struct {
	Rows int
	// NotPathogenic counts rows without a pathogenic, non-conflicting
	// ClinVar assertion.
	NotPathogenic int
	// NoAlleleID counts pathogenic rows without a ClinVar allele id.
	NoAlleleID int
	// Transcripts counts the missense transcripts indexed.
	Transcripts int
	// NoProtein counts missense transcripts without a protein id or start.
	NoProtein int
}

func pathogenic(sig string) bool {
	s := strings.ToLower(sig)
	return strings.Contains(s, "pathogenic") && !strings.Contains(s, "conflicting")
}

// Build indexes the missense transcripts of rows, which must have been
// flattened. Counts are added to stats, which may be nil.
func Build(rows []*variant.Record, stats *Stats) Index {
	var s Stats
	sets := map[string]map[string]struct{}{}
	for _, r := range rows {
		s.Rows++
		if !pathogenic(r.Info.ClinvarSig) {
			s.NotPathogenic++
			continue
		}
		if r.Info.ClinvarAlleleID == "" || r.Info.ClinvarAlleleID == variant.Missing {
			s.NoAlleleID++
			continue
		}
		entry := r.Info.ClinvarAlleleID + sep + strconv.Itoa(r.Info.ClinvarStars)
		for i := range r.Transcripts {
			t := &r.Transcripts[i]
			if !hasTerm(t, missense) {
				continue
			}
			if t.ProteinID == "" || t.ProteinStart <= 0 {
				s.NoProtein++
				continue
			}
			k := Key(t.ProteinID, t.ProteinStart)
			if sets[k] == nil {
				sets[k] = map[string]struct{}{}
			}
			sets[k][entry] = struct{}{}
			s.Transcripts++
		}
	}
	ix := make(Index, len(sets))
	for k, set := range sets {
		l := make([]string, 0, len(set))
		for e := range set {
			l = append(l, e)
		}
		sort.Strings(l)
		ix[k] = l
	}
	log.Printf("Indexed %d residues", len(ix))
	log.Printf("Stats: codon: %+v", s)
	if stats != nil {
		*stats = s
	}
	return ix
}

func hasTerm(t *variant.Transcript, term string) bool {
	for _, c := range t.ConsequenceTerms {
		if c == term {
			return true
		}
	}
	return false
}

// Lookup returns the ClinVar entries at the residues changed by the
// missense transcripts of r, excluding r's own ClinVar allele.
func (ix Index) Lookup(r *variant.Record) []string {
	seen := map[string]bool{}
	var l []string
	for i := range r.Transcripts {
		t := &r.Transcripts[i]
		if !hasTerm(t, missense) || t.ProteinID == "" {
			continue
		}
		for _, e := range ix[Key(t.ProteinID, t.ProteinStart)] {
			if seen[e] || strings.HasPrefix(e, r.Info.ClinvarAlleleID+sep) {
				continue
			}
			seen[e] = true
			l = append(l, e)
		}
	}
	sort.Strings(l)
	return l
}

// Write writes the index as a two-column TSV sorted by residue. The file
// is bgzf-compressed when path ends in ".bgz".
func (ix Index) Write(ctx context.Context, path string) (err error) {
	out, err := variant.CreateOutput(ctx, path, 1)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	keys := make([]string, 0, len(ix))
	for k := range ix {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w := tsv.NewWriter(out.Writer())
	w.WriteString(indexHead)
	if err = w.EndLine(); err != nil {
		return errors.E(err, path)
	}
	for _, k := range keys {
		w.WriteString(k)
		w.WriteString(strings.Join(ix[k], entrySep))
		if err = w.EndLine(); err != nil {
			return errors.E(err, path)
		}
	}
	if err = w.Flush(); err != nil {
		return errors.E(err, path)
	}
	return nil
}

type indexRow struct {
	Residue string
	Alleles string
}

// Read reads an index written by Write.
func Read(ctx context.Context, path string) (ix Index, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open codon index", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var rd io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(rd, in.Name()); u != nil {
		defer u.Close() // nolint: errcheck
		rd = u
	}
	tr := tsv.NewReader(rd)
	tr.Comment = '#'
	ix = Index{}
	var row indexRow
	for line := 1; ; line++ {
		if err = tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: line %d", path, line), err)
		}
		ix[row.Residue] = strings.Split(row.Alleles, entrySep)
	}
	return ix, nil
}
