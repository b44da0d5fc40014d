// Package export snapshots stored listings as JSON Lines into a blob store.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
	"github.com/JakeFAU/car-listing-crawler/internal/hash/sha256"
)

// ContentType is the media type of export objects.
const ContentType = "application/x-ndjson"

// Source streams listings.
type Source interface {
	Each(ctx context.Context, fn func(crawler.Listing) error) error
}

// Result describes a finished export.
type Result struct {
	URI      string
	Path     string
	Count    int64
	Bytes    int64
	Checksum string
}

// Exporter writes one JSONL object per run.
type Exporter struct {
	source Source
	blobs  crawler.BlobStore
	clock  crawler.Clock
	prefix string
	logger *zap.Logger
}

// New constructs an Exporter. prefix may be empty.
func New(source Source, blobs crawler.BlobStore, clock crawler.Clock, prefix string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		source: source,
		blobs:  blobs,
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// ObjectPath returns the object path for an export taken at t.
func ObjectPath(prefix string, t time.Time) string {
	name := fmt.Sprintf("listings_%s.jsonl", t.UTC().Format("20060102_150405"))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Run streams every listing from the source into a new object.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	objectPath := ObjectPath(e.prefix, e.clock.Now())
	pr, pw := io.Pipe()

	var count int64
	produced := make(chan error, 1)
	go func() {
		enc := json.NewEncoder(pw)
		err := e.source.Each(ctx, func(l crawler.Listing) error {
			if err := enc.Encode(l); err != nil {
				return fmt.Errorf("encode %s: %w", l.URL, err)
			}
			count++
			return nil
		})
		_ = pw.CloseWithError(err)
		produced <- err
	}()

	digest := sha256.New()
	uri, err := e.blobs.PutObject(ctx, objectPath, ContentType, digest.TeeReader(pr))
	// Unblock the producer if the upload stopped reading early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	srcErr := <-produced
	if err != nil {
		return Result{}, fmt.Errorf("export listings: %w", err)
	}
	if srcErr != nil {
		return Result{}, fmt.Errorf("read listings: %w", srcErr)
	}

	res := Result{
		URI:      uri,
		Path:     objectPath,
		Count:    count,
		Bytes:    digest.Size(),
		Checksum: digest.Hex(),
	}
	e.logger.Info("export written",
		zap.String("uri", res.URI),
		zap.Int64("listings", res.Count),
		zap.Int64("bytes", res.Bytes),
		zap.String("sha256", res.Checksum),
	)
	return res, nil
}
