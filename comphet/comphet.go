// Package comphet finds candidate compound-heterozygous variant pairs: two
// heterozygous calls in the same gene and the same sample.
package comphet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/guptarohit/asciigraph"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Opts controls pair enumeration.
type Opts struct {
	// MaxPairsPerGene drops the pairs of a (sample, gene) group that would
	// produce more pairs than this. 0 means no limit.
	MaxPairsPerGene int
	// PairWarnThreshold logs (sample, gene) groups producing more pairs
	// than this.
	PairWarnThreshold int
	Parallelism       int
}

// DefaultOpts is the default value for Opts.
var DefaultOpts = Opts{
	PairWarnThreshold: 1000,
}

// Pairs maps sample → gene → variant → partner variants. Variants are in
// variant.Key.Canonical form and partner lists are sorted.
type Pairs map[string]map[string]map[string][]string

// Stats counts what Find saw and emitted.
type Stats struct {
	// HetCalls is the number of distinct (sample, gene, variant) het calls.
	HetCalls int
	// Groups is the number of (sample, gene) groups with two or more calls.
	Groups int
	Pairs  int
	// SupportOnlySkipped counts ordered pairs dropped because both partners
	// are support-only.
	SupportOnlySkipped int
	// CappedGroups and CappedPairs count the groups dropped by
	// MaxPairsPerGene and the pairs they would have produced.
	CappedGroups int
	CappedPairs  int
	// MaxGroupPairs is the largest number of pairs from one group.
	MaxGroupPairs int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.HetCalls += o.HetCalls
	s.Groups += o.Groups
	s.Pairs += o.Pairs
	s.SupportOnlySkipped += o.SupportOnlySkipped
	s.CappedGroups += o.CappedGroups
	s.CappedPairs += o.CappedPairs
	if o.MaxGroupPairs > s.MaxGroupPairs {
		s.MaxGroupPairs = o.MaxGroupPairs
	}
	return s
}

// call is one het call. Calls are distinct by name within a group.
type call struct {
	key         variant.Key
	name        string
	supportOnly bool
}

func (c call) compare(o call) int {
	if d := c.key.Compare(o.key); d != 0 {
		return d
	}
	switch {
	case c.supportOnly == o.supportOnly:
		return 0
	case !c.supportOnly:
		return -1
	}
	return 1
}

// groupPairs returns the number of ordered pairs a group yields, and the
// number skipped for being support-only on both sides. calls must be
// distinct by name.
func groupPairs(calls []call) (n, skipped int) {
	var s int
	for _, c := range calls {
		if c.supportOnly {
			s++
		}
	}
	all := len(calls) * (len(calls) - 1)
	skipped = s * (s - 1)
	return all - skipped, skipped
}

// shardResult holds the output of one sample shard.
type shardResult struct {
	pairs Pairs
	stats Stats
	// sizes counts groups by number of calls.
	sizes map[int]int
}

func sampleShard(sample string, nShard int) int {
	return int(farm.Hash64([]byte(sample)) % uint64(nShard))
}

// Find enumerates the compound-het candidates of tbl, which must hold the
// classified rows (Record.GeneID and Record.SupportOnly set). For every
// sample and gene, each ordered pair (A, B) of distinct het calls is
// recorded unless both A and B are support-only. Counts are added to
// stats, which may be nil.
func Find(tbl *variant.Table, opts Opts, stats *Stats) Pairs {
	nShard := opts.Parallelism
	if nShard < 1 {
		nShard = 1
	}
	if nShard > len(tbl.Samples) && len(tbl.Samples) > 0 {
		nShard = len(tbl.Samples)
	}
	shardOf := make([]int, len(tbl.Samples))
	for i, s := range tbl.Samples {
		shardOf[i] = sampleShard(s, nShard)
	}
	results := make([]shardResult, nShard)
	err := traverse.Each(nShard, func(shard int) error {
		results[shard] = findShard(tbl, shardOf, shard, opts)
		return nil
	})
	if err != nil {
		log.Panicf("comphet: %v", err)
	}
	pairs := Pairs{}
	var s Stats
	sizes := map[int]int{}
	for _, r := range results {
		for sample, genes := range r.pairs {
			if _, ok := pairs[sample]; ok {
				log.Panicf("comphet: sample %s in two shards", sample)
			}
			pairs[sample] = genes
		}
		s = s.Merge(r.stats)
		for n, c := range r.sizes {
			sizes[n] += c
		}
	}
	log.Printf("Compound-het pairs: %d in %d samples", s.Pairs, len(pairs))
	log.Printf("Stats: comphet: %+v", s)
	if log.At(log.Debug) && len(sizes) > 0 {
		log.Debug.Printf("comphet: groups by het call count\n%s", histogram(sizes))
	}
	if stats != nil {
		*stats = stats.Merge(s)
	}
	return pairs
}

func findShard(tbl *variant.Table, shardOf []int, shard int, opts Opts) shardResult {
	res := shardResult{pairs: Pairs{}, sizes: map[int]int{}}
	// groups[sample][gene] lists the distinct het calls. seen maps a
	// variant string to its index in the group.
	groups := map[int]map[string][]call{}
	seen := map[int]map[string]map[string]int{}
	for _, r := range tbl.Rows {
		if len(r.Alleles) != 2 || r.GeneID == "" {
			continue
		}
		c := call{key: r.Key(), name: r.Key().Canonical(), supportOnly: r.SupportOnly}
		for i, gt := range r.Calls {
			if gt.GT != variant.Het || shardOf[i] != shard {
				continue
			}
			if groups[i] == nil {
				groups[i] = map[string][]call{}
				seen[i] = map[string]map[string]int{}
			}
			if seen[i][r.GeneID] == nil {
				seen[i][r.GeneID] = map[string]int{}
			}
			group := groups[i][r.GeneID]
			if j, ok := seen[i][r.GeneID][c.name]; ok {
				// A variant seen both ways pairs as a full call.
				group[j].supportOnly = group[j].supportOnly && c.supportOnly
				continue
			}
			seen[i][r.GeneID][c.name] = len(group)
			groups[i][r.GeneID] = append(group, c)
			res.stats.HetCalls++
		}
	}
	samples := maps.Keys(groups)
	slices.Sort(samples)
	for _, i := range samples {
		sample := tbl.Samples[i]
		genes := maps.Keys(groups[i])
		slices.Sort(genes)
		for _, gene := range genes {
			calls := groups[i][gene]
			if len(calls) < 2 {
				continue
			}
			res.stats.Groups++
			res.sizes[len(calls)]++
			n, skipped := groupPairs(calls)
			res.stats.SupportOnlySkipped += skipped
			if n == 0 {
				continue
			}
			if opts.MaxPairsPerGene > 0 && n > opts.MaxPairsPerGene {
				log.Error.Printf("comphet: %s %s: %d pairs from %d het calls exceeds max_pairs_per_gene %d, dropping gene",
					sample, gene, n, len(calls), opts.MaxPairsPerGene)
				res.stats.CappedGroups++
				res.stats.CappedPairs += n
				continue
			}
			if opts.PairWarnThreshold > 0 && n > opts.PairWarnThreshold {
				log.Printf("comphet: warning: %s %s: %d pairs from %d het calls", sample, gene, n, len(calls))
			}
			if n > res.stats.MaxGroupPairs {
				res.stats.MaxGroupPairs = n
			}
			res.stats.Pairs += n
			if res.pairs[sample] == nil {
				res.pairs[sample] = map[string]map[string][]string{}
			}
			res.pairs[sample][gene] = enumerate(calls)
		}
	}
	return res
}

// enumerate returns every permitted ordered pair of calls.
func enumerate(calls []call) map[string][]string {
	slices.SortFunc(calls, func(a, b call) int { return a.compare(b) })
	m := map[string][]string{}
	for i, a := range calls {
		for j, b := range calls {
			if i == j || (a.supportOnly && b.supportOnly) {
				continue
			}
			m[a.name] = append(m[a.name], b.name)
		}
	}
	for _, v := range m {
		slices.Sort(v)
	}
	return m
}

// histogram renders sizes, a count of groups per group size, as a line
// plot over sizes 2..max.
func histogram(sizes map[int]int) string {
	keys := maps.Keys(sizes)
	max := slices.Max(keys)
	data := make([]float64, 0, max-1)
	for n := 2; n <= max; n++ {
		data = append(data, float64(sizes[n]))
	}
	if len(data) == 1 {
		data = append(data, data[0])
	}
	return asciigraph.Plot(data,
		asciigraph.Height(5),
		asciigraph.Precision(0),
		asciigraph.Caption(fmt.Sprintf("groups by het calls, 2..%d", max)))
}

// Len returns the number of ordered pairs.
func (p Pairs) Len() int {
	var n int
	for _, genes := range p {
		for _, vars := range genes {
			for _, partners := range vars {
				n += len(partners)
			}
		}
	}
	return n
}

// Has reports whether (a, b) is recorded for sample and gene.
func (p Pairs) Has(sample, gene, a, b string) bool {
	_, ok := slices.BinarySearch(p[sample][gene][a], b)
	return ok
}

// Partners returns the variants paired with v in sample, over all genes,
// sorted and deduplicated.
func (p Pairs) Partners(sample, v string) []string {
	var l []string
	for _, vars := range p[sample] {
		l = append(l, vars[v]...)
	}
	slices.Sort(l)
	return slices.Compact(l)
}

// Write writes the pairs as indented JSON. The output is gzipped when path
// ends in ".gz".
func (p Pairs) Write(ctx context.Context, path string) (err error) {
	out, err := variant.CreateOutput(ctx, path, 1)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.E(err, path)
	}
	data = append(data, '\n')
	if _, err = out.Writer().Write(data); err != nil {
		return errors.E(err, path)
	}
	return nil
}

// Read reads a file written by Pairs.Write. Every variant string must be
// in the Key.Canonical form.
func Read(ctx context.Context, path string) (p Pairs, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open comp-het pairs", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		defer u.Close() // nolint: errcheck
		r = u
	}
	if err = json.NewDecoder(r).Decode(&p); err != nil {
		return nil, errors.E(errors.Invalid, path, err)
	}
	for sample, genes := range p {
		for gene, vars := range genes {
			for v, partners := range vars {
				for _, s := range append([]string{v}, partners...) {
					if _, err = variant.ParseCanonical(s); err != nil {
						return nil, errors.E(errors.Invalid, path, fmt.Sprintf("sample %s gene %s", sample, gene), err)
					}
				}
			}
		}
	}
	return p, nil
}
