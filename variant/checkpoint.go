package variant

// This file defines the checkpoint format. A checkpoint holds the filtered
// table before classification, so that a run can be resumed with new
// category thresholds without repeating the filtering stages.

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
)

const (
	// <checkpointVersionHeader, checkpointVersion> is stored in the recordio
	// header.
	checkpointVersionHeader = "aipcheckpoint"
	checkpointVersion       = "AIP_V2"
)

func init() {
	// Raw annotations may survive into a checkpoint when it is written before
	// flattening.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// nullables holds the nullable transcript fields of one row. gob drops
// pointers to zero values, so a SIFT score of 0 would otherwise come back
// as absent.
type nullables struct {
	HasSift     bool
	Sift        float64
	HasPolyphen bool
	Polyphen    float64
	HasLoF      bool
	LoF         string
}

// checkpointRow is the gob payload of one recordio record.
type checkpointRow struct {
	Rec         *Record
	Transcripts []nullables
}

func newCheckpointRow(r *Record) checkpointRow {
	row := checkpointRow{Rec: r, Transcripts: make([]nullables, len(r.Transcripts))}
	for i, t := range r.Transcripts {
		n := &row.Transcripts[i]
		if t.SiftScore != nil {
			n.HasSift, n.Sift = true, *t.SiftScore
		}
		if t.PolyphenScore != nil {
			n.HasPolyphen, n.Polyphen = true, *t.PolyphenScore
		}
		if t.LoF != nil {
			n.HasLoF, n.LoF = true, *t.LoF
		}
	}
	return row
}

func (row checkpointRow) record() (*Record, error) {
	r := row.Rec
	if r == nil {
		return nil, fmt.Errorf("empty row")
	}
	if len(row.Transcripts) != len(r.Transcripts) {
		return nil, fmt.Errorf("%v: %d transcripts, %d nullable entries", r.Key(), len(r.Transcripts), len(row.Transcripts))
	}
	for i := range r.Transcripts {
		t, n := &r.Transcripts[i], row.Transcripts[i]
		t.SiftScore, t.PolyphenScore, t.LoF = nil, nil, nil
		if n.HasSift {
			v := n.Sift
			t.SiftScore = &v
		}
		if n.HasPolyphen {
			v := n.Polyphen
			t.PolyphenScore = &v
		}
		if n.HasLoF {
			v := n.LoF
			t.LoF = &v
		}
	}
	return r, nil
}

// checkpointTrailer is stored in the trailer section of the recordio file.
type checkpointTrailer struct {
	Samples []string
	NumRows int
	// Meta is an opaque gob blob supplied by the caller.
	Meta []byte
}

// WriteCheckpoint writes tbl to path, one gob-encoded row per record. meta,
// if non-nil, is gob-encoded into the trailer and can be read back by
// ReadCheckpoint.
func WriteCheckpoint(ctx context.Context, path string, tbl *Table, meta interface{}) (err error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create checkpoint", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(checkpointVersionHeader, checkpointVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	for _, r := range tbl.Rows {
		b := bytes.NewBuffer(nil)
		if err = gob.NewEncoder(b).Encode(newCheckpointRow(r)); err != nil {
			return errors.E(err, "checkpoint", path, r.Key().String())
		}
		w.Append(b.Bytes())
	}
	t := checkpointTrailer{Samples: tbl.Samples, NumRows: len(tbl.Rows)}
	if meta != nil {
		b := bytes.NewBuffer(nil)
		if err = gob.NewEncoder(b).Encode(meta); err != nil {
			return errors.E(err, "checkpoint metadata", path)
		}
		t.Meta = b.Bytes()
	}
	b := bytes.NewBuffer(nil)
	if err = gob.NewEncoder(b).Encode(t); err != nil {
		return errors.E(err, "checkpoint trailer", path)
	}
	w.SetTrailer(b.Bytes())
	if err = w.Finish(); err != nil {
		return errors.E(err, "checkpoint", path)
	}
	log.Printf("Wrote checkpoint %s: %d rows", path, len(tbl.Rows))
	return nil
}

// ReadCheckpoint reads a file written by WriteCheckpoint. If meta is
// non-nil, the trailer metadata is decoded into it.
func ReadCheckpoint(ctx context.Context, path string, meta interface{}) (tbl *Table, err error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open checkpoint", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	sc := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	defer func() {
		if e := sc.Finish(); e != nil && err == nil {
			err = errors.E(e, path)
		}
	}()
	versionFound := false
	for _, kv := range sc.Header() {
		if kv.Key == checkpointVersionHeader {
			if v, _ := kv.Value.(string); v != checkpointVersion {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: checkpoint version %v, expect %v", path, kv.Value, checkpointVersion))
			}
			versionFound = true
			break
		}
	}
	if !versionFound {
		return nil, errors.E(errors.Invalid, path, checkpointVersionHeader+" not found")
	}
	var t checkpointTrailer
	if err = gob.NewDecoder(bytes.NewReader(sc.Trailer())).Decode(&t); err != nil {
		return nil, errors.E(errors.Invalid, path, "checkpoint trailer", err)
	}
	if meta != nil && t.Meta != nil {
		if err = gob.NewDecoder(bytes.NewReader(t.Meta)).Decode(meta); err != nil {
			return nil, errors.E(errors.Invalid, path, "checkpoint metadata", err)
		}
	}
	tbl = &Table{Samples: t.Samples, Rows: make([]*Record, 0, t.NumRows)}
	for sc.Scan() {
		var row checkpointRow
		if err = gob.NewDecoder(bytes.NewReader(sc.Get().([]byte))).Decode(&row); err != nil {
			return nil, errors.E(errors.Invalid, path, fmt.Sprintf("checkpoint row %d", len(tbl.Rows)), err)
		}
		r, err := row.record()
		if err != nil {
			return nil, errors.E(errors.Invalid, path, fmt.Sprintf("checkpoint row %d", len(tbl.Rows)), err)
		}
		tbl.Rows = append(tbl.Rows, r)
	}
	if err = sc.Err(); err != nil {
		return nil, errors.E(err, path)
	}
	if len(tbl.Rows) != t.NumRows {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: read %d rows, trailer says %d", path, len(tbl.Rows), t.NumRows))
	}
	return tbl, nil
}
