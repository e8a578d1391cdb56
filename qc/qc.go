// Package qc removes sites and genotype calls that fail basic quality
// checks: upstream filter flags, non-biallelic sites, cohort-common sites,
// and calls whose allele balance contradicts the stated genotype.
package qc

import (
	"github.com/grailbio/aip/interval"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/log"
)

// starAllele is the VCF placeholder for an allele spanned by an upstream
// deletion.
const starAllele = "*"

// Opts controls Filter.
type Opts struct {
	// ACThreshold drops sites with AC/AN >= ACThreshold.
	ACThreshold float64
	// Allele balance bands, AD[alt]/(AD[ref]+AD[alt]). Bounds are inclusive.
	HomRefMaxAB float64
	HetMinAB    float64
	HetMaxAB    float64
	HomAltMinAB float64
	// Regions, if set, restricts the analysis to sites it covers.
	Regions *interval.Union
	// Parallelism is the number of row shards processed concurrently.
	Parallelism int
}

// DefaultOpts holds the default band limits.
var DefaultOpts = Opts{
	ACThreshold: 0.1,
	HomRefMaxAB: 0.15,
	HetMinAB:    0.25,
	HetMaxAB:    0.75,
	HomAltMinAB: 0.85,
	Parallelism: 1,
}

// Stats counts the sites and calls removed by Filter.
type Stats struct {
	// Rows is the number of input rows.
	Rows int
	// Flagged counts rows with a non-empty upstream filter set.
	Flagged int
	// NotBiallelic counts rows without exactly two alleles, or with a "*"
	// alternate.
	NotBiallelic int
	// NoAN counts rows with AN == 0, where AC/AN is undefined.
	NoAN int
	// OffTarget counts rows outside Opts.Regions.
	OffTarget int
	// Common counts rows with AC/AN at or above the threshold.
	Common int
	// Kept counts the surviving rows.
	Kept int

	// Calls counts the genotype calls examined on surviving rows, excluding
	// calls that were already missing.
	Calls int
	// NoDepth counts calls dropped because AD was absent or summed to zero.
	NoDepth int
	// Unbalanced counts calls dropped because the allele balance contradicts
	// the genotype.
	Unbalanced int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Rows += o.Rows
	s.Flagged += o.Flagged
	s.NotBiallelic += o.NotBiallelic
	s.NoAN += o.NoAN
	s.OffTarget += o.OffTarget
	s.Common += o.Common
	s.Kept += o.Kept
	s.Calls += o.Calls
	s.NoDepth += o.NoDepth
	s.Unbalanced += o.Unbalanced
	return s
}

// BalanceOK reports whether allele balance ab is consistent with gt.
func (o *Opts) BalanceOK(gt variant.Genotype, ab float64) bool {
	switch gt {
	case variant.HomRef:
		return ab <= o.HomRefMaxAB
	case variant.Het:
		return ab >= o.HetMinAB && ab <= o.HetMaxAB
	case variant.HomAlt:
		return ab >= o.HomAltMinAB
	}
	return false
}

// filterRow applies the site checks to r and, if it survives, resets the
// calls that fail the balance check. It reports whether r survives.
func (o *Opts) filterRow(r *variant.Record, s *Stats) bool {
	s.Rows++
	switch {
	case len(r.Filters) > 0:
		s.Flagged++
		return false
	case len(r.Alleles) != 2 || r.Alleles[1] == starAllele:
		s.NotBiallelic++
		return false
	case o.Regions != nil && !o.Regions.Contains(r.Contig, r.Pos):
		s.OffTarget++
		return false
	case r.AN <= 0:
		s.NoAN++
		return false
	case float64(r.AC)/float64(r.AN) >= o.ACThreshold:
		s.Common++
		return false
	}
	for i, c := range r.Calls {
		if c.GT == variant.NoCall {
			continue
		}
		s.Calls++
		ab, ok := c.AlleleBalance()
		switch {
		case !ok:
			s.NoDepth++
		case !o.BalanceOK(c.GT, ab):
			s.Unbalanced++
		default:
			continue
		}
		r.Calls[i] = variant.Call{GT: variant.NoCall, GQ: -1}
	}
	s.Kept++
	return true
}

// Filter returns the rows that pass the site checks, in input order. Calls
// on surviving rows whose allele balance contradicts their genotype are
// replaced by NoCall; nothing else in a surviving row is changed. Counts
// are added to stats, which may be nil.
func Filter(rows []*variant.Record, opts Opts, stats *Stats) []*variant.Record {
	shardStats := make([]Stats, variant.Shards(len(rows), opts.Parallelism))
	out := variant.Map(rows, opts.Parallelism, func(shard int, r *variant.Record, out []*variant.Record) []*variant.Record {
		if opts.filterRow(r, &shardStats[shard]) {
			out = append(out, r)
		}
		return out
	})
	var s Stats
	for _, ss := range shardStats {
		s = s.Merge(ss)
	}
	log.Printf("Stats: qc: %+v", s)
	if stats != nil {
		*stats = stats.Merge(s)
	}
	return out
}
