// Package config holds the thresholds that drive filtering and
// classification, and loads them from a JSON or YAML document.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/mitchellh/mapstructure"
	yaml "gopkg.in/yaml.v2"
)

// InSilico holds the predictor score thresholds.
type InSilico struct {
	// CADD and REVEL scores strictly above these pass.
	CADD  float64 `mapstructure:"cadd"`
	REVEL float64 `mapstructure:"revel"`
	// SIFT scores at or below, and PolyPhen scores at or above these pass.
	SIFT     float64 `mapstructure:"sift"`
	PolyPhen float64 `mapstructure:"polyphen"`
}

// Opts holds the run configuration. It is built once and passed by value
// into every stage; stages must not modify it.
type Opts struct {
	// ACThreshold drops sites with AC/AN at or above it.
	ACThreshold float64 `mapstructure:"ac_threshold"`
	// AFSemiRare drops sites whose ExAC or gnomAD frequency is at or above
	// it.
	AFSemiRare float64 `mapstructure:"af_semi_rare"`
	// CriticalCSQ lists the consequence terms that count as high impact.
	CriticalCSQ []string `mapstructure:"critical_csq"`
	// UselessCSQ lists the consequence terms ignored when deciding whether a
	// transcript is relevant.
	UselessCSQ []string `mapstructure:"useless_csq"`
	InSilico   InSilico `mapstructure:"in_silico"`
	// RefGenome is informational, e.g. "GRCh38".
	RefGenome string `mapstructure:"ref_genome"`

	// MaxPairsPerGene caps the compound-het pairs emitted per (sample,
	// gene). 0 means no cap.
	MaxPairsPerGene int `mapstructure:"max_pairs_per_gene"`
	// PairWarnThreshold logs (sample, gene) groups with more pairs than
	// this.
	PairWarnThreshold int `mapstructure:"pair_warn_threshold"`

	// CSQFields lists the fields of each exported CSQ string, in order. It
	// is read from variant_object.csq_string. Empty disables CSQ export.
	CSQFields []string `mapstructure:"-"`
}

// DefaultOpts holds the defaults applied to keys absent from a
// configuration document. Thresholds without a default are required.
var DefaultOpts = Opts{
	ACThreshold:       0.1,
	PairWarnThreshold: 1000,
}

// Required lists the keys of the "filter" section that have no default.
var Required = []string{
	"af_semi_rare",
	"critical_csq",
	"useless_csq",
	"in_silico.cadd",
	"in_silico.revel",
	"in_silico.sift",
	"in_silico.polyphen",
}

// Load reads a configuration document from path. Paths ending in .yaml or
// .yml are parsed as YAML, everything else as JSON.
func Load(ctx context.Context, path string) (opts Opts, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return opts, errors.E(err, "open config", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return opts, errors.E(err, "read config", path)
	}
	isYAML := strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
	if opts, err = Parse(data, isYAML); err != nil {
		return opts, errors.E(err, path)
	}
	log.Printf("Loaded config %s: %+v", path, opts)
	return opts, nil
}

// Parse decodes a configuration document:
//
//   {"filter": {"af_semi_rare": 0.01, ...}, "variant_object": {"csq_string": [...]}}
//
// Other top-level sections are ignored. Unknown keys inside "filter" are
// rejected, with the closest known key as a hint.
func Parse(data []byte, isYAML bool) (Opts, error) {
	var doc map[string]interface{}
	if isYAML {
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Opts{}, errors.E(errors.Invalid, "parse config", err)
		}
		m, ok := stringKeys(raw).(map[string]interface{})
		if !ok {
			return Opts{}, errors.E(errors.Invalid, "config: expect a mapping at top level")
		}
		doc = m
	} else if err := json.Unmarshal(data, &doc); err != nil {
		return Opts{}, errors.E(errors.Invalid, "parse config", err)
	}
	filter, ok := doc["filter"].(map[string]interface{})
	if !ok {
		return Opts{}, errors.E(errors.Invalid, `config: missing "filter" section`)
	}
	var missing []string
	for _, k := range Required {
		if !hasPath(filter, k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Opts{}, errors.E(errors.Invalid, "config: missing required keys: "+strings.Join(missing, ", "))
	}

	opts := DefaultOpts
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   &opts,
	})
	if err != nil {
		log.Panicf("mapstructure: %v", err)
	}
	if err := dec.Decode(filter); err != nil {
		return Opts{}, errors.E(errors.Invalid, "config", err)
	}
	if len(md.Unused) > 0 {
		known := append(append([]string(nil), md.Keys...), md.Unset...)
		sort.Strings(md.Unused)
		var msgs []string
		for _, k := range md.Unused {
			msg := fmt.Sprintf("unknown key %q", k)
			if hint := closest(k, known); hint != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", hint)
			}
			msgs = append(msgs, msg)
		}
		return Opts{}, errors.E(errors.Invalid, "config: "+strings.Join(msgs, "; "))
	}
	if vo, ok := doc["variant_object"].(map[string]interface{}); ok {
		if err := mapstructure.Decode(vo["csq_string"], &opts.CSQFields); err != nil {
			return Opts{}, errors.E(errors.Invalid, "config: variant_object.csq_string", err)
		}
	}
	if err := opts.Validate(); err != nil {
		return Opts{}, err
	}
	return opts, nil
}

// Validate checks that the thresholds are in range.
func (o Opts) Validate() error {
	switch {
	case o.ACThreshold <= 0 || o.ACThreshold > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("config: ac_threshold %v must be in (0, 1]", o.ACThreshold))
	case o.AFSemiRare <= 0 || o.AFSemiRare > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("config: af_semi_rare %v must be in (0, 1]", o.AFSemiRare))
	case o.MaxPairsPerGene < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("config: max_pairs_per_gene %d must be >= 0", o.MaxPairsPerGene))
	case len(o.CriticalCSQ) == 0:
		return errors.E(errors.Invalid, "config: critical_csq is empty")
	}
	return nil
}

// Set builds a lookup set from a list of terms.
func Set(terms []string) map[string]struct{} {
	s := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		s[t] = struct{}{}
	}
	return s
}

func hasPath(m map[string]interface{}, path string) bool {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		v, ok := m[p]
		if !ok || v == nil {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		if m, ok = v.(map[string]interface{}); !ok {
			return false
		}
	}
	return false
}

// closest returns the entry of known nearest to key by edit distance, or ""
// when nothing is reasonably close.
func closest(key string, known []string) string {
	best, bestDist := "", len(key)/2+2
	for _, k := range known {
		if k == "-" {
			continue
		}
		if d := matchr.Levenshtein(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// stringKeys converts the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]interface{}.
func stringKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case []interface{}:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	}
	return v
}
