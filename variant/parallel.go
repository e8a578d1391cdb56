package variant

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Shards returns the number of shards Map splits n rows into.
func Shards(n, parallelism int) int {
	if parallelism < 1 {
		parallelism = 1
	}
	if n < parallelism {
		if n == 0 {
			return 1
		}
		return n
	}
	return parallelism
}

// Map runs fn over rows on up to parallelism goroutines. Each shard covers a
// contiguous range of rows; fn appends the rows it keeps (none, the input
// row, or several derived rows) to out and returns it. The results are
// concatenated in shard order, so the output order follows the input order
// regardless of scheduling. shard is in [0, Shards(len(rows), parallelism))
// and lets fn keep per-shard state such as stats without locking.
func Map(rows []*Record, parallelism int, fn func(shard int, r *Record, out []*Record) []*Record) []*Record {
	nShard := Shards(len(rows), parallelism)
	results := make([][]*Record, nShard)
	err := traverse.Each(nShard, func(jobIdx int) error {
		startIdx := (jobIdx * len(rows)) / nShard
		endIdx := ((jobIdx + 1) * len(rows)) / nShard
		out := make([]*Record, 0, endIdx-startIdx)
		for _, r := range rows[startIdx:endIdx] {
			out = fn(jobIdx, r, out)
		}
		results[jobIdx] = out
		return nil
	})
	if err != nil {
		log.Panicf("variant.Map: %v", err)
	}
	var n int
	for _, r := range results {
		n += len(r)
	}
	merged := make([]*Record, 0, n)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}
