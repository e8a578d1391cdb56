// Package panel reads gene panel membership.
package panel

import (
	"context"
	"io/ioutil"
	"sort"

	"github.com/Jeffail/gabs"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// metadataKey is the reserved top-level key that carries panel metadata
// rather than a gene.
const metadataKey = "panel_metadata"

// Panel holds the green genes and the subset added in this panel version.
// It is immutable once built.
type Panel struct {
	Green map[string]struct{}
	New   map[string]struct{}
}

// IsGreen reports whether gene is on the panel.
func (p *Panel) IsGreen(gene string) bool {
	_, ok := p.Green[gene]
	return ok
}

// IsNew reports whether gene is new in this panel version.
func (p *Panel) IsNew(gene string) bool {
	_, ok := p.New[gene]
	return ok
}

// Genes returns the green genes, sorted.
func (p *Panel) Genes() []string {
	g := make([]string, 0, len(p.Green))
	for k := range p.Green {
		g = append(g, k)
	}
	sort.Strings(g)
	return g
}

// New builds a panel from gene lists. Every gene in newGenes must also be
// in green.
func New(green, newGenes []string) (*Panel, error) {
	p := &Panel{Green: map[string]struct{}{}, New: map[string]struct{}{}}
	for _, g := range green {
		p.Green[g] = struct{}{}
	}
	for _, g := range newGenes {
		if !p.IsGreen(g) {
			return nil, errors.Errorf("panel: new gene %s is not green", g)
		}
		p.New[g] = struct{}{}
	}
	return p, nil
}

// Parse decodes a panel document:
//
//   {"ENSG00000012048": {"new": true, "moi": "..."}, ..., "panel_metadata": {...}}
//
// Every top-level key other than panel_metadata is a green gene; genes
// whose "new" entry is true are also new.
func Parse(data []byte) (*Panel, error) {
	doc, err := gabs.ParseJSON(data)
	if err != nil {
		return nil, errors.Wrapf(err, "panel: parse")
	}
	children, err := doc.ChildrenMap()
	if err != nil {
		return nil, errors.Wrapf(err, "panel: expect an object at top level")
	}
	p := &Panel{Green: map[string]struct{}{}, New: map[string]struct{}{}}
	for gene, entry := range children {
		if gene == metadataKey {
			continue
		}
		p.Green[gene] = struct{}{}
		if !entry.Exists("new") {
			continue
		}
		isNew, ok := entry.Path("new").Data().(bool)
		if !ok {
			return nil, errors.Errorf("panel: gene %s: \"new\" is %v, expect a boolean", gene, entry.Path("new").Data())
		}
		if isNew {
			p.New[gene] = struct{}{}
		}
	}
	return p, nil
}

// Load reads a panel document from path.
func Load(ctx context.Context, path string) (p *Panel, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "panel: open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "panel: read %s", path)
	}
	if p, err = Parse(data); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	log.Printf("Extracted %d green genes, %d new genes from %s", len(p.Green), len(p.New), path)
	return p, nil
}
