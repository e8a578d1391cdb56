// Package popfilter restricts sites to rare, not confidently benign
// variants in green panel genes with at least one relevant transcript
// consequence.
package popfilter

import (
	"strings"

	"github.com/grailbio/aip/panel"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/log"
)

// Opts controls the filters.
type Opts struct {
	// AFSemiRare is the exclusive upper bound on the ExAC and gnomAD
	// frequencies.
	AFSemiRare float64
	// UselessCSQ lists consequence terms that do not make a transcript
	// relevant on their own.
	UselessCSQ []string
	// Parallelism is the number of row shards processed concurrently.
	Parallelism int
}

// Stats holds the row count after each step.
type Stats struct {
	Rows             int
	AfterRare        int
	AfterBenign      int
	AfterGreen       int
	AfterConsequence int
	// TranscriptsDropped counts transcript consequences removed by the
	// consequence filter, including those on dropped rows.
	TranscriptsDropped int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Rows += o.Rows
	s.AfterRare += o.AfterRare
	s.AfterBenign += o.AfterBenign
	s.AfterGreen += o.AfterGreen
	s.AfterConsequence += o.AfterConsequence
	s.TranscriptsDropped += o.TranscriptsDropped
	return s
}

const (
	benign         = "benign"
	proteinCoding  = "protein_coding"
	refSeqAccessor = "NM"
)

// IsRare reports whether both population frequencies are below
// afSemiRare. Missing frequencies are 0 and pass.
func IsRare(r *variant.Record, afSemiRare float64) bool {
	return r.Info.ExacAF < afSemiRare && r.Info.GnomadAF < afSemiRare
}

// IsConfidentBenign reports whether ClinVar calls r benign with at least
// one gold star. Unstarred benign assertions are not trusted.
func IsConfidentBenign(r *variant.Record) bool {
	return r.Info.ClinvarStars > 0 && strings.Contains(strings.ToLower(r.Info.ClinvarSig), benign)
}

// relevant reports whether transcript t should be kept on a row scoped to
// gene.
func relevant(t *variant.Transcript, gene string, useless map[string]struct{}) bool {
	if t.GeneID != gene {
		return false
	}
	if t.Biotype != proteinCoding && !strings.Contains(t.ManeSelect, refSeqAccessor) {
		return false
	}
	for _, c := range t.ConsequenceTerms {
		if _, ok := useless[c]; !ok {
			return true
		}
	}
	return false
}

// explode returns one row per distinct gene id of r that is on the panel.
// Rows share their calls and annotations with r.
func explode(r *variant.Record, p *panel.Panel, out []*variant.Record) []*variant.Record {
	seen := map[string]bool{}
	for _, g := range r.GeneIDs {
		if seen[g] || !p.IsGreen(g) {
			continue
		}
		seen[g] = true
		c := *r
		c.GeneID = g
		out = append(out, &c)
	}
	return out
}

// Apply runs, in order, the rarity filter, the benign filter, the gene
// explosion with the panel filter, and the consequence filter. Each row
// that survives has a single GeneID and at least one transcript
// consequence on that gene. Counts are added to stats, which may be nil.
func Apply(rows []*variant.Record, opts Opts, p *panel.Panel, stats *Stats) []*variant.Record {
	useless := make(map[string]struct{}, len(opts.UselessCSQ))
	for _, c := range opts.UselessCSQ {
		useless[c] = struct{}{}
	}
	s := Stats{Rows: len(rows)}

	rows = variant.Map(rows, opts.Parallelism, func(_ int, r *variant.Record, out []*variant.Record) []*variant.Record {
		if IsRare(r, opts.AFSemiRare) {
			out = append(out, r)
		}
		return out
	})
	s.AfterRare = len(rows)
	log.Printf("Variants remaining after rare filter: %d", s.AfterRare)

	rows = variant.Map(rows, opts.Parallelism, func(_ int, r *variant.Record, out []*variant.Record) []*variant.Record {
		if !IsConfidentBenign(r) {
			out = append(out, r)
		}
		return out
	})
	s.AfterBenign = len(rows)
	log.Printf("Variants remaining after benign filter: %d", s.AfterBenign)

	rows = variant.Map(rows, opts.Parallelism, func(_ int, r *variant.Record, out []*variant.Record) []*variant.Record {
		return explode(r, p, out)
	})
	s.AfterGreen = len(rows)
	log.Printf("Variants remaining after green gene filter: %d", s.AfterGreen)

	dropped := make([]int, variant.Shards(len(rows), opts.Parallelism))
	rows = variant.Map(rows, opts.Parallelism, func(shard int, r *variant.Record, out []*variant.Record) []*variant.Record {
		var kept []variant.Transcript
		for i := range r.Transcripts {
			if relevant(&r.Transcripts[i], r.GeneID, useless) {
				kept = append(kept, r.Transcripts[i])
			}
		}
		dropped[shard] += len(r.Transcripts) - len(kept)
		if len(kept) == 0 {
			return out
		}
		r.Transcripts = kept
		return append(out, r)
	})
	for _, n := range dropped {
		s.TranscriptsDropped += n
	}
	s.AfterConsequence = len(rows)
	log.Printf("Variants remaining after consequence filter: %d", s.AfterConsequence)

	log.Printf("Stats: popfilter: %+v", s)
	if stats != nil {
		*stats = stats.Merge(s)
	}
	return rows
}
