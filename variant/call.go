package variant

import "strings"

// Genotype is a diploid (or hemizygous) genotype call against a biallelic
// site.
type Genotype int8

const (
	// NoCall marks a missing genotype, either from the caller or because a
	// filter dropped the call.
	NoCall Genotype = iota
	HomRef
	Het
	HomAlt
)

// ParseGenotype parses VCF GT text. Phasing is ignored. Haploid calls ("0",
// "1") map to HomRef and HomAlt.
func ParseGenotype(gt string) Genotype {
	if gt == "" {
		return NoCall
	}
	alleles := strings.FieldsFunc(gt, func(r rune) bool { return r == '/' || r == '|' })
	var nAlt, nRef int
	for _, a := range alleles {
		switch a {
		case "0":
			nRef++
		case ".":
			return NoCall
		default:
			nAlt++
		}
	}
	switch {
	case nAlt == 0 && nRef > 0:
		return HomRef
	case nAlt > 0 && nRef > 0:
		return Het
	case nAlt > 0:
		return HomAlt
	}
	return NoCall
}

// String renders the genotype as unphased VCF GT text.
func (g Genotype) String() string {
	switch g {
	case HomRef:
		return "0/0"
	case Het:
		return "0/1"
	case HomAlt:
		return "1/1"
	}
	return "./."
}

// NAlt returns the number of alternate alleles in the call.
func (g Genotype) NAlt() int {
	switch g {
	case Het:
		return 1
	case HomAlt:
		return 2
	}
	return 0
}

// Call is one sample's genotype call at one site.
type Call struct {
	GT Genotype
	// AD holds the reference- and alternate-supporting read depths. It is nil
	// when the caller emitted no depths.
	AD []int
	// DP is the total depth; zero means unknown, in which case AD is summed.
	DP int
	// GQ is the genotype quality; negative means unknown.
	GQ int
	// PL holds phred-scaled genotype likelihoods for (0/0, 0/1, 1/1), or nil.
	PL []int
}

// AlleleBalance returns AD[alt]/(AD[ref]+AD[alt]). ok is false when AD is
// absent or the depth is zero.
func (c Call) AlleleBalance() (ab float64, ok bool) {
	if len(c.AD) != 2 {
		return 0, false
	}
	total := c.AD[0] + c.AD[1]
	if total <= 0 {
		return 0, false
	}
	return float64(c.AD[1]) / float64(total), true
}

// Depth returns DP, falling back to the sum of AD.
func (c Call) Depth() int {
	if c.DP > 0 {
		return c.DP
	}
	var n int
	for _, d := range c.AD {
		n += d
	}
	return n
}
