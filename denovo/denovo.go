// Package denovo finds variants present in a child but absent from both
// parents, using the trio likelihood model of Samocha et al.
package denovo

import (
	"sort"
	"strings"

	"github.com/grailbio/aip/pedigree"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/log"
)

// Opts holds the model constants and check thresholds.
type Opts struct {
	// DeNovoPrior is the per-base de novo mutation rate.
	DeNovoPrior float64
	// MinPopPrior floors the population frequency prior.
	MinPopPrior float64
	MinChildGQ  int
	// MinDPRatio is the minimum child depth over summed parent depth.
	MinDPRatio  float64
	MaxParentAB float64
	MinChildAB  float64
	MinP        float64
	// ErrorRate is the per-read error rate used to derive likelihoods from
	// allele depths when PL is absent.
	ErrorRate float64
	// PAR lists the pseudoautosomal regions, which are treated as
	// autosomal for males.
	PAR []Region
	// Parallelism is the number of site shards processed concurrently.
	Parallelism int
}

// Region is a closed 1-based interval on a contig. Contig names are compared
// without a "chr" prefix.
type Region struct {
	Contig     string
	Start, End int
}

// ParGRCh38 and ParGRCh37 are the pseudoautosomal regions of X and Y.
var (
	ParGRCh38 = []Region{
		{"X", 10001, 2781479}, {"X", 155701383, 156030895},
		{"Y", 10001, 2781479}, {"Y", 56887903, 57217415},
	}
	ParGRCh37 = []Region{
		{"X", 60001, 2699520}, {"X", 154931044, 155260560},
		{"Y", 10001, 2649520}, {"Y", 59034050, 59363566},
	}
)

// DefaultOpts holds the published model constants.
var DefaultOpts = Opts{
	DeNovoPrior: 1 / 3e7,
	MinPopPrior: 100 / 3e7,
	MinChildGQ:  20,
	MinDPRatio:  0.1,
	MaxParentAB: 0.05,
	MinChildAB:  0.2,
	MinP:        0.05,
	ErrorRate:   0.01,
	PAR:         ParGRCh38,
	Parallelism: 1,
}

// ParForGenome returns the pseudoautosomal regions for a reference genome
// name. Unknown names get GRCh38.
func ParForGenome(name string) []Region {
	switch strings.ToLower(name) {
	case "grch37", "hg19", "b37":
		return ParGRCh37
	}
	return ParGRCh38
}

// Stats counts trios and calls.
type Stats struct {
	// Trios is the number of trios evaluated.
	Trios int
	// SkippedTrios counts trios dropped for inconsistent or missing data.
	SkippedTrios int
	// Sites is the number of distinct sites examined.
	Sites int
	// Candidates counts (trio, site) pairs whose genotypes fit the de novo
	// pattern.
	Candidates int
	// Failures counts candidates by failed check.
	Failures map[string]int
	// Low, Medium and High count graded calls.
	Low, Medium, High int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Trios += o.Trios
	s.SkippedTrios += o.SkippedTrios
	s.Sites += o.Sites
	s.Candidates += o.Candidates
	if len(o.Failures) > 0 {
		m := make(map[string]int, len(s.Failures)+len(o.Failures))
		for k, v := range s.Failures {
			m[k] = v
		}
		for k, v := range o.Failures {
			m[k] += v
		}
		s.Failures = m
	}
	s.Low += o.Low
	s.Medium += o.Medium
	s.High += o.High
	return s
}

// Index maps a site to the sorted, distinct ids of children with a HIGH
// confidence de novo call there.
type Index map[variant.Key][]string

// Samples returns the children at key.
func (ix Index) Samples(key variant.Key) []string { return ix[key] }

// trio is a usable trio resolved to call columns.
type trio struct {
	pedigree.Trio
	child, father, mother int
}

// resolveTrios returns the trios whose members are all genotyped and whose
// parentage is consistent.
func resolveTrios(ped *pedigree.Pedigree, samples map[string]int, s *Stats) []trio {
	var trios []trio
	for _, t := range ped.Trios() {
		reason := ""
		if err := ped.Check(t); err != nil {
			reason = err.Error()
		} else if !t.Complete() {
			reason = "missing parent"
		}
		child, okc := samples[t.Child]
		father, okf := samples[t.Father]
		mother, okm := samples[t.Mother]
		switch {
		case reason != "":
		case !okc:
			reason = "child not genotyped"
		case !okf:
			reason = "father not genotyped"
		case !okm:
			reason = "mother not genotyped"
		}
		if reason != "" {
			s.SkippedTrios++
			log.Error.Printf("denovo: skipping trio %v: %s", t, reason)
			continue
		}
		trios = append(trios, trio{Trio: t, child: child, father: father, mother: mother})
	}
	return trios
}

func (o *Opts) inPAR(contig string, pos int) bool {
	for _, r := range o.PAR {
		if r.Contig == contig && pos >= r.Start && pos <= r.End {
			return true
		}
	}
	return false
}

// evaluate returns the result for one trio at one site, and whether the
// genotypes fit a de novo pattern at all.
func (o *Opts) evaluate(r *variant.Record, s site, t trio) (Result, bool) {
	contig := strings.TrimPrefix(r.Contig, "chr")
	kid, dad, mom := r.Calls[t.child], r.Calls[t.father], r.Calls[t.mother]
	switch {
	case contig == "M" || contig == "MT":
		return Result{}, false
	case contig == "X" && t.Sex == pedigree.Male && !o.inPAR(contig, r.Pos):
		if kid.GT != variant.HomAlt || mom.GT != variant.HomRef {
			return Result{}, false
		}
		return o.hemizygous(s, kid, mom), true
	case contig == "Y" && !o.inPAR(contig, r.Pos):
		if t.Sex != pedigree.Male || kid.GT != variant.HomAlt || dad.GT != variant.HomRef {
			return Result{}, false
		}
		return o.hemizygous(s, kid, dad), true
	case contig == "X" && t.Sex == pedigree.Unknown && !o.inPAR(contig, r.Pos):
		return Result{}, false
	}
	if kid.GT != variant.Het || dad.GT != variant.HomRef || mom.GT != variant.HomRef {
		return Result{}, false
	}
	return o.autosomal(s, kid, dad, mom), true
}

// Detect evaluates every usable trio of ped at every distinct site of
// tbl and returns the HIGH confidence calls. Rows sharing a site (one per
// gene after explosion) are evaluated once. Counts are added to stats,
// which may be nil.
func Detect(tbl *variant.Table, ped *pedigree.Pedigree, opts Opts, stats *Stats) Index {
	var s Stats
	trios := resolveTrios(ped, tbl.SampleIndex(), &s)
	s.Trios = len(trios)

	seen := map[variant.Key]bool{}
	var sites []*variant.Record
	for _, r := range tbl.Rows {
		if len(r.Alleles) != 2 {
			continue
		}
		if k := r.Key(); !seen[k] {
			seen[k] = true
			sites = append(sites, r)
		}
	}
	s.Sites = len(sites)

	type call struct {
		key    variant.Key
		sample string
	}
	nShard := variant.Shards(len(sites), opts.Parallelism)
	shardStats := make([]Stats, nShard)
	shardCalls := make([][]call, nShard)
	if len(trios) > 0 {
		variant.Map(sites, opts.Parallelism, func(shard int, r *variant.Record, out []*variant.Record) []*variant.Record {
			ss := &shardStats[shard]
			st := site{snv: r.Key().IsSNV(), prior: r.Info.GnomadAF}
			if st.prior < opts.MinPopPrior {
				st.prior = opts.MinPopPrior
			}
			for _, c := range r.Calls {
				st.nAlt += c.GT.NAlt()
			}
			for _, t := range trios {
				res, ok := opts.evaluate(r, st, t)
				if !ok {
					continue
				}
				ss.Candidates++
				if res.Failure != "" {
					if ss.Failures == nil {
						ss.Failures = map[string]int{}
					}
					ss.Failures[res.Failure]++
					continue
				}
				switch res.Confidence {
				case Low:
					ss.Low++
				case Medium:
					ss.Medium++
				case High:
					ss.High++
					shardCalls[shard] = append(shardCalls[shard], call{r.Key(), t.Child})
				}
				log.Debug.Printf("denovo: %v %s: %v p=%.4g", r.Key(), t.Child, res.Confidence, res.P)
			}
			return out
		})
	}
	for _, ss := range shardStats {
		s = s.Merge(ss)
	}

	ix := Index{}
	for _, calls := range shardCalls {
		for _, c := range calls {
			ix[c.key] = append(ix[c.key], c.sample)
		}
	}
	for k, samples := range ix {
		sort.Strings(samples)
		uniq := samples[:1]
		for _, smp := range samples[1:] {
			if smp != uniq[len(uniq)-1] {
				uniq = append(uniq, smp)
			}
		}
		ix[k] = uniq
	}
	log.Printf("%d variants showed de novo inheritance", len(ix))
	log.Printf("Stats: denovo: %+v", s)
	if stats != nil {
		*stats = stats.Merge(s)
	}
	return ix
}
