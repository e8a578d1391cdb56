// Package category applies the classification rules that flag candidate
// disease-causing variants. Each rule is independent; a variant can carry
// several categories.
package category

import (
	"strings"

	"github.com/grailbio/aip/config"
	"github.com/grailbio/aip/denovo"
	"github.com/grailbio/aip/panel"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/log"
)

const (
	pathogenic  = "pathogenic"
	conflicting = "conflicting"
	lofteeHC    = "HC"
)

// Missing predictor scores take values that never pass their threshold:
// SIFT passes at or below its threshold, PolyPhen at or above.
const (
	missingSIFT     = 1.0
	missingPolyPhen = 0.0
)

// Classifier holds everything the rules need besides the row itself.
type Classifier struct {
	InSilico config.InSilico
	// Critical is the set of high impact consequence terms.
	Critical map[string]struct{}
	// Panel supplies the genes new in this panel version.
	Panel *panel.Panel
	// DeNovo holds the high confidence de novo calls.
	DeNovo denovo.Index
}

// New builds a classifier.
func New(opts config.Opts, p *panel.Panel, dn denovo.Index) *Classifier {
	return &Classifier{
		InSilico: opts.InSilico,
		Critical: config.Set(opts.CriticalCSQ),
		Panel:    p,
		DeNovo:   dn,
	}
}

func isPathogenic(r *variant.Record) bool {
	return strings.Contains(strings.ToLower(r.Info.ClinvarSig), pathogenic)
}

// hasCritical reports whether any transcript has a critical consequence.
func (c *Classifier) hasCritical(r *variant.Record) bool {
	for i := range r.Transcripts {
		if r.Transcripts[i].HasConsequence(c.Critical) {
			return true
		}
	}
	return false
}

// Category1: confident ClinVar pathogenic, not conflicting.
func (c *Classifier) Category1(r *variant.Record) bool {
	sig := strings.ToLower(r.Info.ClinvarSig)
	return r.Info.ClinvarStars > 0 && strings.Contains(sig, pathogenic) && !strings.Contains(sig, conflicting)
}

// Category2: a gene new to the panel, with a critical consequence, a
// ClinVar pathogenic assertion, or a high CADD or REVEL score.
func (c *Classifier) Category2(r *variant.Record) bool {
	if c.Panel == nil || !c.Panel.IsNew(r.GeneID) {
		return false
	}
	return c.hasCritical(r) ||
		isPathogenic(r) ||
		r.Info.CADD > c.InSilico.CADD ||
		r.Info.Revel > c.InSilico.REVEL
}

// Category3: a critical consequence, together with a high confidence or
// unannotated LOFTEE call on some transcript, or a ClinVar pathogenic
// assertion.
func (c *Classifier) Category3(r *variant.Record) bool {
	if !c.hasCritical(r) {
		return false
	}
	if isPathogenic(r) {
		return true
	}
	for i := range r.Transcripts {
		if lof := r.Transcripts[i].LoF; lof == nil || *lof == lofteeHC {
			return true
		}
	}
	return false
}

// Category4 returns the children with a high confidence de novo call at
// the site, or nil.
func (c *Classifier) Category4(r *variant.Record) []string {
	if c.DeNovo == nil {
		return nil
	}
	return c.DeNovo.Samples(r.Key())
}

// Support: CADD and REVEL both high, or some transcript with a low SIFT
// score and some transcript with a high PolyPhen score, backed by a
// damaging or missing MutationTaster prediction.
func (c *Classifier) Support(r *variant.Record) bool {
	if r.Info.CADD > c.InSilico.CADD && r.Info.Revel > c.InSilico.REVEL {
		return true
	}
	var sift, polyphen bool
	for i := range r.Transcripts {
		t := &r.Transcripts[i]
		s, p := missingSIFT, missingPolyPhen
		if t.SiftScore != nil {
			s = *t.SiftScore
		}
		if t.PolyphenScore != nil {
			p = *t.PolyphenScore
		}
		sift = sift || s <= c.InSilico.SIFT
		polyphen = polyphen || p >= c.InSilico.PolyPhen
	}
	mt := r.Info.MutationTaster
	return sift && polyphen && (strings.Contains(mt, "D") || mt == variant.Missing)
}

// Classify sets r.Categories, r.DeNovo and r.SupportOnly.
func (c *Classifier) Classify(r *variant.Record) {
	var s variant.CategorySet
	if c.Category1(r) {
		s = s.With(variant.Category1)
	}
	if c.Category2(r) {
		s = s.With(variant.Category2)
	}
	if c.Category3(r) {
		s = s.With(variant.Category3)
	}
	r.DeNovo = c.Category4(r)
	if len(r.DeNovo) > 0 {
		s = s.With(variant.Category4)
	}
	if c.Support(r) {
		s = s.With(variant.CategorySupport)
	}
	r.Categories = s
	r.SupportOnly = s == variant.NewCategorySet(variant.CategorySupport)
}

// Categorised reports whether r carries at least one category.
func Categorised(r *variant.Record) bool { return !r.Categories.Empty() }

// Stats counts rows per category.
type Stats struct {
	Rows int
	// ByCategory is indexed in variant.AllCategories order.
	ByCategory  [5]int
	SupportOnly int
	Kept        int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Rows += o.Rows
	for i, n := range o.ByCategory {
		s.ByCategory[i] += n
	}
	s.SupportOnly += o.SupportOnly
	s.Kept += o.Kept
	return s
}

// Apply classifies every row and returns the categorised ones, in input
// order. Counts are added to stats, which may be nil.
func Apply(rows []*variant.Record, c *Classifier, parallelism int, stats *Stats) []*variant.Record {
	shardStats := make([]Stats, variant.Shards(len(rows), parallelism))
	out := variant.Map(rows, parallelism, func(shard int, r *variant.Record, out []*variant.Record) []*variant.Record {
		ss := &shardStats[shard]
		ss.Rows++
		c.Classify(r)
		if !Categorised(r) {
			return out
		}
		for i, cat := range variant.AllCategories {
			if r.Categories.Has(cat) {
				ss.ByCategory[i]++
			}
		}
		if r.SupportOnly {
			ss.SupportOnly++
		}
		ss.Kept++
		return append(out, r)
	})
	var s Stats
	for _, ss := range shardStats {
		s = s.Merge(ss)
	}
	log.Printf("Variants remaining after category filter: %d", s.Kept)
	log.Printf("Stats: category: %+v", s)
	if stats != nil {
		*stats = stats.Merge(s)
	}
	return out
}
