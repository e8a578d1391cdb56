package variant

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a biallelic site. Multi-allelic sites must be decomposed
// before they reach this package; Key never holds more than one alternate
// allele.
type Key struct {
	Contig string
	// Pos is the 1-based position, as in VCF text.
	Pos int
	Ref string
	Alt string
}

// String renders the key as "chr1:55516888 G>A".
func (k Key) String() string {
	return fmt.Sprintf("%s:%d %s>%s", k.Contig, k.Pos, k.Ref, k.Alt)
}

// Canonical renders the key in the form used by the compound-het output,
// "1-55516888-G-A". Every "chr" in the contig name is removed.
func (k Key) Canonical() string {
	var sb strings.Builder
	sb.Grow(len(k.Contig) + len(k.Ref) + len(k.Alt) + 14)
	sb.WriteString(strings.ReplaceAll(k.Contig, "chr", ""))
	sb.WriteByte('-')
	sb.WriteString(strconv.Itoa(k.Pos))
	sb.WriteByte('-')
	sb.WriteString(k.Ref)
	sb.WriteByte('-')
	sb.WriteString(k.Alt)
	return sb.String()
}

// IsSNV reports whether both alleles are a single base.
func (k Key) IsSNV() bool { return len(k.Ref) == 1 && len(k.Alt) == 1 }

// ParseCanonical parses the output of Key.Canonical. The contig is returned
// without a "chr" prefix.
func ParseCanonical(s string) (Key, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("variant string %q: expect contig-pos-ref-alt", s)
	}
	pos, err := strconv.Atoi(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("variant string %q: %v", s, err)
	}
	return Key{Contig: parts[0], Pos: pos, Ref: parts[2], Alt: parts[3]}, nil
}

// contigRank orders contigs 1..22, X, Y, M, then everything else by name.
func contigRank(contig string) (int, string) {
	c := strings.TrimPrefix(contig, "chr")
	if n, err := strconv.Atoi(c); err == nil {
		return n, ""
	}
	switch c {
	case "X":
		return 23, ""
	case "Y":
		return 24, ""
	case "M", "MT":
		return 25, ""
	}
	return 26, c
}

// Compare orders keys by contig (natural order), position, then alleles.
func (k Key) Compare(o Key) int {
	if k.Contig != o.Contig {
		r0, s0 := contigRank(k.Contig)
		r1, s1 := contigRank(o.Contig)
		switch {
		case r0 != r1:
			return r0 - r1
		case s0 < s1:
			return -1
		case s0 > s1:
			return 1
		}
	}
	if k.Pos != o.Pos {
		if k.Pos < o.Pos {
			return -1
		}
		return 1
	}
	if c := strings.Compare(k.Ref, o.Ref); c != 0 {
		return c
	}
	return strings.Compare(k.Alt, o.Alt)
}
