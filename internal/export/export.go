// Package export streams filtered rows to CSV, JSON Lines or an HTML
// report. It consumes the same windowed read interface as the rendering
// collaborator and never requests more than one window at a time, so
// export memory stays bounded regardless of row count.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/coffersTech/loglens/internal/cache"
	"github.com/coffersTech/loglens/internal/index"
)

// Format selects the output encoding.
type Format int

const (
	CSV Format = iota
	JSONL
	HTML
)

// ParseFormat maps a format name to its Format; unknown names error.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "csv":
		return CSV, nil
	case "jsonl":
		return JSONL, nil
	case "html":
		return HTML, nil
	default:
		return 0, fmt.Errorf("unknown export format: %q", name)
	}
}

// RowSource is the bounded-window read interface the exporter consumes.
// It is the same interface the rendering layer uses; the exporter performs
// no file I/O of its own against the log.
type RowSource interface {
	Len() int
	Rows(start, count int) []cache.Row
}

// Options configures one export run.
type Options struct {
	Format  Format
	Path    string
	MaxRows int // 0 = all rows
}

// windowRows bounds how many rows are materialized per request.
const windowRows = 1024

// htmlPreviewCap bounds the HTML report's preview table.
const htmlPreviewCap = 5000

// Run streams rows from src to opts.Path. A destination ending in .gz is
// gzip-compressed. On error or cancellation the partial output file is
// removed; it is never left looking complete.
func Run(ctx context.Context, src RowSource, opts Options, progress func(done, total int64)) (err error) {
	f, err := os.Create(opts.Path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(opts.Path)
		}
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(opts.Path), ".gz") {
		gz = gzip.NewWriter(bw)
		w = gz
	}

	total := src.Len()
	if opts.MaxRows > 0 && total > opts.MaxRows {
		total = opts.MaxRows
	}

	switch opts.Format {
	case CSV:
		err = writeCSV(ctx, w, src, total, progress)
	case JSONL:
		err = writeJSONL(ctx, w, src, total, progress)
	case HTML:
		err = writeHTML(ctx, w, src, total, progress)
	default:
		err = fmt.Errorf("unknown export format: %d", opts.Format)
	}
	if err != nil {
		return err
	}

	if gz != nil {
		if err = gz.Close(); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if progress != nil {
		progress(int64(total), int64(total))
	}
	return nil
}

// eachWindow walks [0, total) in bounded windows, checking cancellation
// between windows.
func eachWindow(ctx context.Context, src RowSource, total int, fn func(start int, rows []cache.Row) error) error {
	for start := 0; start < total; start += windowRows {
		if err := ctx.Err(); err != nil {
			return err
		}
		count := windowRows
		if start+count > total {
			count = total - start
		}
		if err := fn(start, src.Rows(start, count)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func writeCSV(ctx context.Context, w io.Writer, src RowSource, total int, progress func(done, total int64)) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "level", "message"}); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	err := eachWindow(ctx, src, total, func(start int, rows []cache.Row) error {
		for _, r := range rows {
			if err := cw.Write([]string{r.Timestamp, index.DecodeLevel(r.Level), r.Message}); err != nil {
				return fmt.Errorf("export: %w", err)
			}
		}
		if progress != nil {
			progress(int64(start+len(rows)), int64(total))
		}
		return nil
	})
	if err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

type jsonRow struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

func writeJSONL(ctx context.Context, w io.Writer, src RowSource, total int, progress func(done, total int64)) error {
	enc := json.NewEncoder(w)
	return eachWindow(ctx, src, total, func(start int, rows []cache.Row) error {
		for _, r := range rows {
			if err := enc.Encode(jsonRow{
				Timestamp: r.Timestamp,
				Level:     index.DecodeLevel(r.Level),
				Message:   r.Message,
			}); err != nil {
				return fmt.Errorf("export: %w", err)
			}
		}
		if progress != nil {
			progress(int64(start+len(rows)), int64(total))
		}
		return nil
	})
}
