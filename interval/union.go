package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// PosType is the coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// Entry is a single interval, with 0-based half-open coordinates.
type Entry struct {
	Contig string
	Start0 PosType
	End    PosType
}

// Union is a set of disjoint intervals per contig. For each contig, the
// (0-based) start of interval #k is in element [2k] of the endpoint slice and
// its end in element [2k+1], in increasing order. A position is covered iff
// the number of endpoints at or below it is odd.
type Union struct {
	endpoints map[string][]PosType
}

func normContig(c string) string { return strings.TrimPrefix(c, "chr") }

// NewUnion merges entries into a Union. Entries need not be sorted.
func NewUnion(entries []Entry) *Union {
	byContig := map[string][]Entry{}
	for _, e := range entries {
		c := normContig(e.Contig)
		byContig[c] = append(byContig[c], e)
	}
	u := &Union{endpoints: make(map[string][]PosType, len(byContig))}
	for c, l := range byContig {
		sort.Slice(l, func(i, j int) bool { return l[i].Start0 < l[j].Start0 })
		var ep []PosType
		for _, e := range l {
			if e.End <= e.Start0 {
				continue
			}
			if n := len(ep); n > 0 && e.Start0 <= ep[n-1] {
				if e.End > ep[n-1] {
					ep[n-1] = e.End
				}
				continue
			}
			ep = append(ep, e.Start0, e.End)
		}
		u.endpoints[c] = ep
	}
	return u
}

// Contains reports whether the 1-based position pos on contig is covered.
func (u *Union) Contains(contig string, pos int) bool {
	ep := u.endpoints[normContig(contig)]
	if len(ep) == 0 || pos < 1 || pos > posTypeMax {
		return false
	}
	// Number of endpoints <= pos-1 (0-based position).
	idx := sort.Search(len(ep), func(i int) bool { return ep[i] > PosType(pos-1) })
	return idx&1 == 1
}

// Bases returns the number of covered bases.
func (u *Union) Bases() int {
	var n int
	for _, ep := range u.endpoints {
		for i := 0; i+1 < len(ep); i += 2 {
			n += int(ep[i+1] - ep[i])
		}
	}
	return n
}

// ParseRegion parses a region string of one of the forms
//   [contig]:[1-based first pos]-[last pos]
//   [contig]:[1-based pos]
//   [contig]
// The whole contig is returned if there is no positional restriction.
func ParseRegion(region string) (Entry, error) {
	colon := strings.LastIndexByte(region, ':')
	if colon < 0 {
		if region == "" {
			return Entry{}, fmt.Errorf("interval.ParseRegion: empty region")
		}
		return Entry{Contig: region, Start0: 0, End: posTypeMax - 1}, nil
	}
	e := Entry{Contig: region[:colon]}
	rng := region[colon+1:]
	first, last := rng, rng
	if dash := strings.IndexByte(rng, '-'); dash >= 0 {
		first, last = rng[:dash], rng[dash+1:]
	}
	start, err := strconv.Atoi(first)
	if err != nil || start < 1 {
		return Entry{}, fmt.Errorf("interval.ParseRegion: invalid start in %q", region)
	}
	end, err := strconv.Atoi(last)
	if err != nil || end < start || end >= posTypeMax {
		return Entry{}, fmt.Errorf("interval.ParseRegion: invalid end in %q", region)
	}
	e.Start0, e.End = PosType(start-1), PosType(end)
	return e, nil
}

// ParseBED reads the first three columns of a BED file. Lines starting
// with '#', "track" or "browser" are skipped.
func ParseBED(r io.Reader) (*Union, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if text == "" || text[0] == '#' || strings.HasPrefix(text, "track") || strings.HasPrefix(text, "browser") {
			continue
		}
		tokens := strings.Fields(text)
		if len(tokens) < 3 {
			return nil, fmt.Errorf("interval.ParseBED: line %d has fewer tokens than expected", line)
		}
		start, err := strconv.Atoi(tokens[1])
		if err != nil || start < 0 {
			return nil, fmt.Errorf("interval.ParseBED: invalid start coordinate %q on line %d", tokens[1], line)
		}
		end, err := strconv.Atoi(tokens[2])
		if err != nil || end < start || end >= posTypeMax {
			return nil, fmt.Errorf("interval.ParseBED: invalid coordinate pair on line %d", line)
		}
		entries = append(entries, Entry{Contig: tokens[0], Start0: PosType(start), End: PosType(end)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewUnion(entries), nil
}

// LoadBED reads a BED file from path. Compressed files are decompressed
// transparently.
func LoadBED(ctx context.Context, path string) (u *Union, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open BED", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if c := compress.NewReaderPath(r, in.Name()); c != nil {
		defer c.Close() // nolint: errcheck
		r = c
	}
	if u, err = ParseBED(r); err != nil {
		return nil, errors.E(errors.Invalid, path, err)
	}
	log.Printf("BED %s loaded, %d base(s) covered", path, u.Bases())
	return u, nil
}
