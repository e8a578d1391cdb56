package variant

import (
	"strings"

	"github.com/biogo/store/llrb"
)

// sortKey orders rows by site, then gene. seq breaks ties so that
// duplicate rows are all kept, in input order.
type sortKey struct {
	key  Key
	gene string
	seq  int
	rec  *Record
}

func (k sortKey) Compare(c llrb.Comparable) int {
	k2 := c.(sortKey)
	if d := k.key.Compare(k2.key); d != 0 {
		return d
	}
	if d := strings.Compare(k.gene, k2.gene); d != 0 {
		return d
	}
	return k.seq - k2.seq
}

// SortedRows is an ordered view over a set of rows, used to write outputs
// whose byte content does not depend on the order stages produced rows in.
type SortedRows struct {
	tree llrb.Tree
}

// NewSortedRows indexes rows. Rows without exactly two alleles are
// skipped.
func NewSortedRows(rows []*Record) *SortedRows {
	s := &SortedRows{}
	for i, r := range rows {
		if len(r.Alleles) != 2 {
			continue
		}
		s.tree.Insert(sortKey{key: r.Key(), gene: r.GeneID, seq: i, rec: r})
	}
	return s
}

// Do calls fn for every row in order until fn returns true.
func (s *SortedRows) Do(fn func(r *Record) (done bool)) {
	s.tree.Do(func(c llrb.Comparable) bool {
		return fn(c.(sortKey).rec)
	})
}
