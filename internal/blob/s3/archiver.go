package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	defaultFlushInterval = time.Minute
	defaultMaxBatch      = 1000
)

// ArchiveConfig controls batching.
type ArchiveConfig struct {
	Prefix        string
	FlushInterval time.Duration
	MaxBatch      int
}

// ArchiveSink buffers records and uploads them as JSON Lines objects under
// {prefix}/YYYY/MM/DD/opportunities-{unixnano}.jsonl. A batch is flushed
// when it reaches MaxBatch records, on every FlushInterval tick and on
// shutdown.
type ArchiveSink struct {
	w      domain.BlobWriter
	cfg    ArchiveConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	buf     bytes.Buffer
	pending int
}

// NewArchiveSink creates an archive sink writing through w.
func NewArchiveSink(w domain.BlobWriter, cfg ArchiveConfig, logger *slog.Logger) *ArchiveSink {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "opportunities"
	}
	return &ArchiveSink{
		w:      w,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archive")),
		now:    time.Now,
	}
}

// Name implements domain.OpportunitySink.
func (a *ArchiveSink) Name() string { return "archive" }

// Emit appends rec to the current batch, flushing if it is full.
func (a *ArchiveSink) Emit(ctx context.Context, rec domain.OpportunityRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("s3blob: marshal opportunity %s: %w", rec.ID, err)
	}

	a.mu.Lock()
	a.buf.Write(line)
	a.buf.WriteByte('\n')
	a.pending++
	full := a.pending >= a.cfg.MaxBatch
	a.mu.Unlock()

	if full {
		return a.Flush(ctx)
	}
	return nil
}

// Flush uploads the buffered batch, if any. On failure the batch is kept
// and retried on the next flush.
func (a *ArchiveSink) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.pending == 0 {
		a.mu.Unlock()
		return nil
	}
	data := append([]byte(nil), a.buf.Bytes()...)
	count := a.pending
	a.buf.Reset()
	a.pending = 0
	a.mu.Unlock()

	key := a.objectKey()
	var err error
	if int64(len(data)) > MinPartSize {
		err = a.w.PutMultipart(ctx, key, bytes.NewReader(data), MinPartSize)
	} else {
		err = a.w.Put(ctx, key, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		a.mu.Lock()
		rest := append([]byte(nil), a.buf.Bytes()...)
		a.buf.Reset()
		a.buf.Write(data)
		a.buf.Write(rest)
		a.pending += count
		a.mu.Unlock()
		return fmt.Errorf("s3blob: archive %d records: %w", count, err)
	}

	a.logger.InfoContext(ctx, "archived opportunities",
		slog.String("key", key),
		slog.Int("records", count),
		slog.Int("bytes", len(data)),
	)
	return nil
}

func (a *ArchiveSink) objectKey() string {
	t := a.now().UTC()
	return fmt.Sprintf("%s/%s/opportunities-%d.jsonl", a.cfg.Prefix, t.Format("2006/01/02"), t.UnixNano())
}

// Run flushes on every interval until ctx is cancelled, then flushes once
// more with a short deadline.
func (a *ArchiveSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.Flush(fctx); err != nil {
				a.logger.Error("final archive flush failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

var _ domain.OpportunitySink = (*ArchiveSink)(nil)
