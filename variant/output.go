package variant

import (
	"context"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
	"github.com/minio/highwayhash"
)

// digestKey seeds the output digests. It is fixed so that digests of
// identical runs can be compared across machines.
var digestKey = []byte("aip-output-digest-key-0123456789")

// Output is a file opened for writing. Paths ending in ".gz" are gzipped,
// paths ending in ".bgz" are bgzf-compressed. A highwayhash of the
// uncompressed content is kept so that reruns can be checked for byte
// identity.
type Output struct {
	path    string
	out     file.File
	w       io.Writer
	digest  hash.Hash
	closers []io.Closer
}

// CreateOutput creates path. parallelism sets the number of bgzf
// compression goroutines.
func CreateOutput(ctx context.Context, path string, parallelism int) (*Output, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	digest, err := highwayhash.New(digestKey)
	if err != nil {
		log.Panicf("highwayhash: %v", err)
	}
	o := &Output{path: path, out: out, digest: digest}
	var w io.Writer = out.Writer(ctx)
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz := gzip.NewWriter(w)
		o.closers = append(o.closers, gz)
		w = gz
	case strings.HasSuffix(path, ".bgz"):
		if parallelism <= 0 {
			parallelism = 1
		}
		bw := bgzf.NewWriter(w, parallelism)
		o.closers = append(o.closers, bw)
		w = bw
	}
	o.w = io.MultiWriter(w, digest)
	return o, nil
}

// Writer returns the uncompressed stream.
func (o *Output) Writer() io.Writer { return o.w }

// Digest returns the hex highwayhash of everything written so far.
func (o *Output) Digest() string { return hex.EncodeToString(o.digest.Sum(nil)) }

// Close flushes the compressors and closes the file.
func (o *Output) Close(ctx context.Context) error {
	var once errors.Once
	for _, c := range o.closers {
		once.Set(c.Close())
	}
	once.Set(o.out.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "close", o.path)
	}
	log.Printf("Wrote %s (highwayhash %s)", o.path, o.Digest())
	return nil
}
