// Package annotate moves the nested per-source annotations of a site into
// flat typed fields, substituting sentinels for missing values, and renders
// VEP CSQ strings for export.
package annotate

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs"
	"github.com/grailbio/aip/variant"
	"github.com/grailbio/base/log"
	"github.com/mitchellh/mapstructure"
)

// Stats counts the values that could not be used as given.
type Stats struct {
	Rows int
	// Unparsable counts values present but not convertible to the field's
	// type. They take the field's sentinel.
	Unparsable int
	// BadTranscripts counts transcript consequences that could not be
	// decoded and were dropped.
	BadTranscripts int
	// NoTranscripts counts rows without any transcript consequence.
	NoTranscripts int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Rows += o.Rows
	s.Unparsable += o.Unparsable
	s.BadTranscripts += o.BadTranscripts
	s.NoTranscripts += o.NoTranscripts
	return s
}

type floatField struct {
	path string
	dst  func(*variant.Info) *float64
}

type intField struct {
	path string
	dst  func(*variant.Info) *int
}

type stringField struct {
	path string
	dst  func(*variant.Info) *string
	// old is replaced by new in the extracted value.
	old, new string
}

var floatFields = []floatField{
	{"exac.AF", func(i *variant.Info) *float64 { return &i.ExacAF }},
	{"gnomad_exome_coverage", func(i *variant.Info) *float64 { return &i.GnomadExCov }},
	{"gnomad_exomes.AF", func(i *variant.Info) *float64 { return &i.GnomadExAF }},
	{"gnomad_genome_coverage", func(i *variant.Info) *float64 { return &i.GnomadCov }},
	{"gnomad_genomes.AF", func(i *variant.Info) *float64 { return &i.GnomadAF }},
	{"splice_ai.delta_score", func(i *variant.Info) *float64 { return &i.SpliceAIDelta }},
	{"dbnsfp.REVEL_score", func(i *variant.Info) *float64 { return &i.Revel }},
	{"cadd.PHRED", func(i *variant.Info) *float64 { return &i.CADD }},
	{"dbnsfp.phastCons100way_vertebrate", func(i *variant.Info) *float64 { return &i.PhastCons }},
	{"dbnsfp.GERP_RS", func(i *variant.Info) *float64 { return &i.GerpRS }},
	{"eigen.Eigen_phred", func(i *variant.Info) *float64 { return &i.EigenPhred }},
}

var intFields = []intField{
	{"exac.AC_Het", func(i *variant.Info) *int { return &i.ExacACHet }},
	{"exac.AC_Hom", func(i *variant.Info) *int { return &i.ExacACHom }},
	{"exac.AC_Hemi", func(i *variant.Info) *int { return &i.ExacACHemi }},
	{"gnomad_exomes.AN", func(i *variant.Info) *int { return &i.GnomadExAN }},
	{"gnomad_exomes.AC", func(i *variant.Info) *int { return &i.GnomadExAC }},
	{"gnomad_exomes.Hom", func(i *variant.Info) *int { return &i.GnomadExHom }},
	{"gnomad_genomes.AN", func(i *variant.Info) *int { return &i.GnomadAN }},
	{"gnomad_genomes.AC", func(i *variant.Info) *int { return &i.GnomadAC }},
	{"gnomad_genomes.Hom", func(i *variant.Info) *int { return &i.GnomadHom }},
	{"clinvar.gold_stars", func(i *variant.Info) *int { return &i.ClinvarStars }},
}

var stringFields = []stringField{
	{"splice_ai.splice_consequence", func(i *variant.Info) *string { return &i.SpliceAICsq }, " ", "_"},
	{"clinvar.clinical_significance", func(i *variant.Info) *string { return &i.ClinvarSig }, "", ""},
	{"clinvar.allele_id", func(i *variant.Info) *string { return &i.ClinvarAlleleID }, "", ""},
	// dbNSFP predictions are per transcript, ';'-delimited.
	{"dbnsfp.MutationTaster_pred", func(i *variant.Info) *string { return &i.MutationTaster }, ";", ","},
	{"dbnsfp.FATHMM_pred", func(i *variant.Info) *string { return &i.FATHMM }, ";", ","},
	{"dbnsfp.MetaSVM_pred", func(i *variant.Info) *string { return &i.MetaSVM }, ";", ","},
	{"vep.variant_class", func(i *variant.Info) *string { return &i.VariantClass }, "", ""},
}

// toFloat converts a decoded JSON value. ok is false for values that are
// present but unusable.
func toFloat(v interface{}) (f float64, ok bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// toString renders a scalar annotation as text.
func toString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// Flatten copies the nested annotations of r into r.Info and decodes its
// VEP transcript consequences into r.Transcripts, then drops
// r.Annotations. Missing values take their sentinel: 0 for numbers and
// variant.Missing for strings. Flatten never fails; problems are counted in
// s.
func Flatten(r *variant.Record, s *Stats) {
	s.Rows++
	info := variant.Info{}
	var doc *gabs.Container
	if r.Annotations != nil {
		var err error
		if doc, err = gabs.Consume(r.Annotations); err != nil {
			log.Panicf("gabs.Consume %v: %v", r.Key(), err)
		}
	}
	lookup := func(path string) (interface{}, bool) {
		if doc == nil {
			return nil, false
		}
		v := doc.Path(path).Data()
		return v, v != nil
	}
	for _, f := range floatFields {
		v, ok := lookup(f.path)
		if !ok {
			continue
		}
		if x, ok := toFloat(v); ok {
			*f.dst(&info) = x
		} else {
			s.Unparsable++
			log.Debug.Printf("%v: %s: unparsable value %v", r.Key(), f.path, v)
		}
	}
	for _, f := range intFields {
		v, ok := lookup(f.path)
		if !ok {
			continue
		}
		if x, ok := toFloat(v); ok {
			*f.dst(&info) = int(x)
		} else {
			s.Unparsable++
			log.Debug.Printf("%v: %s: unparsable value %v", r.Key(), f.path, v)
		}
	}
	for _, f := range stringFields {
		dst := f.dst(&info)
		*dst = variant.Missing
		v, ok := lookup(f.path)
		if !ok {
			continue
		}
		str, ok := toString(v)
		if !ok {
			s.Unparsable++
			log.Debug.Printf("%v: %s: unparsable value %v", r.Key(), f.path, v)
			continue
		}
		if f.old != "" {
			str = strings.Replace(str, f.old, f.new, -1)
		}
		*dst = str
	}
	r.Info = info

	r.Transcripts = nil
	if v, ok := lookup("vep.transcript_consequences"); ok {
		list, _ := v.([]interface{})
		for _, e := range list {
			var t variant.Transcript
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				WeaklyTypedInput: true,
				Result:           &t,
			})
			if err != nil {
				log.Panicf("mapstructure: %v", err)
			}
			if err := dec.Decode(e); err != nil {
				s.BadTranscripts++
				log.Debug.Printf("%v: transcript consequence: %v", r.Key(), err)
				continue
			}
			r.Transcripts = append(r.Transcripts, t)
		}
	}
	if len(r.Transcripts) == 0 {
		s.NoTranscripts++
	}
	r.Annotations = nil
}

// FlattenRows runs Flatten on every row using parallelism shards. Counts are
// added to stats, which may be nil.
func FlattenRows(rows []*variant.Record, parallelism int, stats *Stats) []*variant.Record {
	shardStats := make([]Stats, variant.Shards(len(rows), parallelism))
	out := variant.Map(rows, parallelism, func(shard int, r *variant.Record, out []*variant.Record) []*variant.Record {
		Flatten(r, &shardStats[shard])
		return append(out, r)
	})
	var s Stats
	for _, ss := range shardStats {
		s = s.Merge(ss)
	}
	log.Printf("Stats: annotate: %+v", s)
	if stats != nil {
		*stats = stats.Merge(s)
	}
	return out
}
