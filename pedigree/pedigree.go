// Package pedigree reads family structure in PLINK .fam form and derives
// the parent/child trios used for de novo detection.
package pedigree

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// Sex is the PLINK sex code.
type Sex int8

const (
	// Unknown is PLINK code 0, or any other value.
	Unknown Sex = iota
	Male
	Female
)

func (s Sex) String() string {
	switch s {
	case Male:
		return "male"
	case Female:
		return "female"
	}
	return "unknown"
}

func parseSex(code string) Sex {
	switch code {
	case "1":
		return Male
	case "2":
		return Female
	}
	return Unknown
}

// Individual is one line of a .fam file.
type Individual struct {
	Family    string
	ID        string
	Father    string // "" if not listed
	Mother    string // "" if not listed
	Sex       Sex
	Phenotype string
}

// famRow is the tsv layout of a .fam line.
type famRow struct {
	Family    string
	ID        string
	Father    string
	Mother    string
	Sex       string
	Phenotype string
}

// missingParent is the PLINK placeholder for an absent parent.
const missingParent = "0"

// Pedigree is a set of individuals keyed by id.
type Pedigree struct {
	Individuals []Individual
	byID        map[string]int
}

// Trio is a child with at least one listed parent.
type Trio struct {
	Family string
	Child  string
	Father string // "" if missing
	Mother string // "" if missing
	// Sex is the child's sex.
	Sex Sex
}

// Complete reports whether both parents are listed.
func (t Trio) Complete() bool { return t.Father != "" && t.Mother != "" }

func (t Trio) String() string {
	return fmt.Sprintf("%s/%s (father %q, mother %q, %v)", t.Family, t.Child, t.Father, t.Mother, t.Sex)
}

// Parse reads a tab-separated .fam file. Lines starting with '#' are
// ignored. Individual ids must be unique.
func Parse(r io.Reader) (*Pedigree, error) {
	tr := tsv.NewReader(r)
	tr.Comment = '#'
	p := &Pedigree{byID: map[string]int{}}
	var row famRow
	for line := 1; ; line++ {
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, fmt.Sprintf("pedigree line %d", line), err)
		}
		if row.ID == "" || row.ID == missingParent {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("pedigree line %d: empty individual id", line))
		}
		if _, ok := p.byID[row.ID]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("pedigree line %d: duplicate individual %q", line, row.ID))
		}
		ind := Individual{
			Family:    row.Family,
			ID:        row.ID,
			Sex:       parseSex(row.Sex),
			Phenotype: row.Phenotype,
		}
		if row.Father != missingParent {
			ind.Father = row.Father
		}
		if row.Mother != missingParent {
			ind.Mother = row.Mother
		}
		p.byID[ind.ID] = len(p.Individuals)
		p.Individuals = append(p.Individuals, ind)
	}
	return p, nil
}

// Read reads a .fam file from path.
func Read(ctx context.Context, path string) (p *Pedigree, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open pedigree", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	if p, err = Parse(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("Read %d individuals from %s", len(p.Individuals), path)
	return p, nil
}

// Individual returns the individual with the given id.
func (p *Pedigree) Individual(id string) (Individual, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Individual{}, false
	}
	return p.Individuals[i], true
}

// Trios returns one trio per individual with at least one listed parent,
// sorted by child id.
func (p *Pedigree) Trios() []Trio {
	var trios []Trio
	for _, ind := range p.Individuals {
		if ind.Father == "" && ind.Mother == "" {
			continue
		}
		trios = append(trios, Trio{
			Family: ind.Family,
			Child:  ind.ID,
			Father: ind.Father,
			Mother: ind.Mother,
			Sex:    ind.Sex,
		})
	}
	sort.Slice(trios, func(i, j int) bool { return trios[i].Child < trios[j].Child })
	return trios
}

// Check reports why a trio cannot be used, or nil if it can. A parent's
// sex is checked only when the parent has its own line in the pedigree; a
// listed father must be male and a listed mother female.
func (p *Pedigree) Check(t Trio) error {
	switch {
	case t.Father == "" && t.Mother == "":
		return fmt.Errorf("no parents")
	case t.Father == t.Child || t.Mother == t.Child:
		return fmt.Errorf("individual is its own parent")
	case t.Father != "" && t.Father == t.Mother:
		return fmt.Errorf("father and mother are the same individual")
	}
	if f, ok := p.Individual(t.Father); ok && f.Sex != Male {
		return fmt.Errorf("father %s is %v", f.ID, f.Sex)
	}
	if m, ok := p.Individual(t.Mother); ok && m.Sex != Female {
		return fmt.Errorf("mother %s is %v", m.ID, m.Sex)
	}
	return nil
}
