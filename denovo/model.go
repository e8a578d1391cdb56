package denovo

import (
	"math"

	"github.com/grailbio/aip/variant"
	"gonum.org/v1/gonum/stat/distuv"
)

// Confidence grades a de novo call.
type Confidence int8

const (
	// None means the site is not a de novo candidate for the trio, or it
	// failed a check.
	None Confidence = iota
	Low
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	}
	return "NONE"
}

// Failure reasons, counted in Stats.
const (
	failGQ          = "child GQ"
	failDPRatio     = "depth ratio"
	failChildAB     = "child allele balance"
	failParentDepth = "parent depth"
	failParentAB    = "parent allele balance"
	failP           = "posterior"
	failNoData      = "no likelihoods"
)

// Result is the outcome of evaluating one trio at one site.
type Result struct {
	Confidence Confidence
	// P is the posterior probability of a de novo event.
	P float64
	// Failure names the failed check when Confidence is None for a site
	// whose genotypes fit the de novo pattern.
	Failure string
}

// site holds the per-site values shared by every trio.
type site struct {
	snv bool
	// prior is the population frequency prior, floored at Opts.MinPopPrior.
	prior float64
	// nAlt is the number of alternate alleles called across the cohort.
	nAlt int
}

// likelihoods returns the phred-scaled genotype likelihoods of c for
// (0/0, 0/1, 1/1). When PL is absent they are derived from AD with a
// binomial read error model. ok is false if neither is usable.
func (o *Opts) likelihoods(c variant.Call) (pl [3]float64, ok bool) {
	if len(c.PL) == 3 {
		for i, v := range c.PL {
			pl[i] = float64(v)
		}
		return pl, true
	}
	if len(c.AD) != 2 || c.AD[0]+c.AD[1] == 0 {
		return pl, false
	}
	n := float64(c.AD[0] + c.AD[1])
	k := float64(c.AD[1])
	fractions := [3]float64{o.ErrorRate, 0.5, 1 - o.ErrorRate}
	var logL [3]float64
	best := math.Inf(-1)
	for i, f := range fractions {
		logL[i] = distuv.Binomial{N: n, P: f}.LogProb(k)
		if logL[i] > best {
			best = logL[i]
		}
	}
	for i := range logL {
		pl[i] = math.Round(-10 * (logL[i] - best) / math.Ln10)
	}
	return pl, true
}

// posteriors converts phred-scaled likelihoods into normalised genotype
// probabilities.
func posteriors(pl [3]float64) (pp [3]float64) {
	var sum float64
	for i, v := range pl {
		pp[i] = math.Pow(10, -v/10)
		sum += pp[i]
	}
	for i := range pp {
		pp[i] /= sum
	}
	return pp
}

// genotypeQuality returns GQ if set, else the gap between the two smallest
// likelihoods, capped at 99.
func genotypeQuality(c variant.Call, pl [3]float64) float64 {
	if c.GQ >= 0 {
		return float64(c.GQ)
	}
	s := pl
	for i := 0; i < 2; i++ {
		for j := i + 1; j < 3; j++ {
			if s[j] < s[i] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
	return math.Min(s[1]-s[0], 99)
}

// altFraction returns AD[1]/sum(AD), and false when the depth is zero.
func altFraction(c variant.Call) (float64, bool) {
	return c.AlleleBalance()
}

// grade applies the confidence rules to a posterior that passed every
// check.
func (o *Opts) grade(s site, p, kidAB, dpRatio float64, kidDP int) Confidence {
	if !s.snv {
		switch {
		case p > 0.99 && kidAB > 0.3 && s.nAlt == 1:
			return High
		case p > 0.5 && kidAB > 0.3 && s.nAlt <= 5:
			return Medium
		case kidAB > 0.2:
			return Low
		}
		return None
	}
	switch {
	case p > 0.99 && kidAB > 0.3 && dpRatio > 0.2,
		p > 0.99 && kidAB > 0.3 && s.nAlt == 1,
		p > 0.5 && kidAB > 0.3 && s.nAlt < 10 && kidDP > 10:
		return High
	case p > 0.5 && (kidAB > 0.3 || s.nAlt == 1):
		return Medium
	case kidAB > 0.2:
		return Low
	}
	return None
}

// checkParent returns the failure reason for a parent call, or "".
func (o *Opts) checkParent(c variant.Call) string {
	ab, ok := altFraction(c)
	if !ok {
		return failParentDepth
	}
	if ab > o.MaxParentAB {
		return failParentAB
	}
	return ""
}

// autosomal evaluates a heterozygous child of two hom-ref parents.
func (o *Opts) autosomal(s site, kid, dad, mom variant.Call) Result {
	kidPL, ok1 := o.likelihoods(kid)
	dadPL, ok2 := o.likelihoods(dad)
	momPL, ok3 := o.likelihoods(mom)
	if !ok1 || !ok2 || !ok3 {
		return Result{Failure: failNoData}
	}
	kidPP, dadPP, momPP := posteriors(kidPL), posteriors(dadPL), posteriors(momPL)

	pDataGivenDN := dadPP[0] * momPP[0] * kidPP[1] * o.DeNovoPrior
	pHetInParent := 1 - math.Pow(1-s.prior, 4)
	pDataGivenMissedHet := (dadPP[1]*momPP[0] + dadPP[0]*momPP[1]) * kidPP[1] * pHetInParent
	p := pDataGivenDN / (pDataGivenDN + pDataGivenMissedHet)

	kidAB, _ := altFraction(kid)
	parentDP := dad.Depth() + mom.Depth()
	var dpRatio float64
	if parentDP > 0 {
		dpRatio = float64(kid.Depth()) / float64(parentDP)
	}
	r := Result{P: p}
	switch {
	case genotypeQuality(kid, kidPL) < float64(o.MinChildGQ):
		r.Failure = failGQ
	case parentDP == 0 || dpRatio < o.MinDPRatio:
		r.Failure = failDPRatio
	case !(kidAB >= o.MinChildAB):
		r.Failure = failChildAB
	case o.checkParent(dad) != "":
		r.Failure = o.checkParent(dad)
	case o.checkParent(mom) != "":
		r.Failure = o.checkParent(mom)
	case math.IsNaN(p) || p < o.MinP:
		r.Failure = failP
	default:
		r.Confidence = o.grade(s, p, kidAB, dpRatio, kid.Depth())
	}
	return r
}

// hemizygous evaluates a hom-alt male child of a hom-ref parent on the
// non-PAR part of a sex chromosome: the mother on X, the father on Y.
func (o *Opts) hemizygous(s site, kid, parent variant.Call) Result {
	kidPL, ok1 := o.likelihoods(kid)
	parentPL, ok2 := o.likelihoods(parent)
	if !ok1 || !ok2 {
		return Result{Failure: failNoData}
	}
	kidPP, parentPP := posteriors(kidPL), posteriors(parentPL)

	pDataGivenDN := parentPP[0] * kidPP[2] * o.DeNovoPrior
	pHetInParent := 1 - math.Pow(1-s.prior, 4)
	pDataGivenMissedHet := (parentPP[1] + parentPP[2]) * kidPP[2] * pHetInParent
	p := pDataGivenDN / (pDataGivenDN + pDataGivenMissedHet)

	kidAB, _ := altFraction(kid)
	var dpRatio float64
	if parent.Depth() > 0 {
		dpRatio = float64(kid.Depth()) / float64(parent.Depth())
	}
	r := Result{P: p}
	switch {
	case genotypeQuality(kid, kidPL) < float64(o.MinChildGQ):
		r.Failure = failGQ
	case parent.Depth() == 0 || dpRatio < o.MinDPRatio:
		r.Failure = failDPRatio
	case !(kidAB >= o.MinChildAB):
		r.Failure = failChildAB
	case o.checkParent(parent) != "":
		r.Failure = o.checkParent(parent)
	case math.IsNaN(p) || p < o.MinP:
		r.Failure = failP
	default:
		r.Confidence = o.grade(s, p, kidAB, dpRatio, kid.Depth())
	}
	return r
}
