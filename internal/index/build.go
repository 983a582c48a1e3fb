package index

import (
	"bytes"
	"context"
	"time"

	"github.com/coffersTech/loglens/internal/logfile"
)

const (
	// cancelCheckLines bounds cancellation latency independent of file
	// size: the token is observed at least once per this many lines.
	cancelCheckLines = 4096

	// progressInterval throttles progress callbacks so the consumer is
	// not flooded on fast scans.
	progressInterval = 100 * time.Millisecond

	// jsonLineCap bounds how many bytes of a JSON line are fed to the
	// parser during the index pass.
	jsonLineCap = 64 * 1024
)

// Options configures an index build.
type Options struct {
	Format Format
}

// ProgressFunc receives bytes-processed/total counters. It carries no
// structural data; partial index state is never exposed through it.
type ProgressFunc func(done, total int64)

// Build streams the mapped bytes once and produces the line index and
// activity histogram. Unparsable lines are indexed with LevelUnknown and
// no minute bucket, never dropped. On cancellation nothing is published
// and the context error is returned.
func Build(ctx context.Context, lf *logfile.LogFile, opts Options, progress ProgressFunc) (*LineIndex, *ActivityHistogram, error) {
	data := lf.Bytes()
	size := lf.Size()

	ix := &LineIndex{
		OffCol:   make([]int64, 0, 4096),
		LenCol:   make([]uint32, 0, 4096),
		LvlCol:   make([]uint8, 0, 4096),
		MinCol:   make([]int64, 0, 4096),
		FileSize: size,
		Format:   opts.Format,
	}
	hist := NewActivityHistogram()

	lastReport := time.Now()
	lines := 0

	for start := 0; start < len(data); {
		if lines%cancelCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		end := len(data)
		if nl := bytes.IndexByte(data[start:], '\n'); nl >= 0 {
			end = start + nl
		}

		ix.OffCol = append(ix.OffCol, int64(start))
		ix.LenCol = append(ix.LenCol, uint32(end-start))

		level, minute := lineMeta(data[start:end], opts.Format)
		ix.LvlCol = append(ix.LvlCol, level)
		ix.MinCol = append(ix.MinCol, minute)
		if minute != 0 {
			hist.Add(minute)
		}

		lines++
		start = end + 1

		if progress != nil && time.Since(lastReport) >= progressInterval {
			progress(int64(end), size)
			lastReport = time.Now()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if progress != nil {
		progress(size, size)
	}
	return ix, hist, nil
}

// lineMeta extracts level and minute key from one raw line.
func lineMeta(line []byte, format Format) (uint8, int64) {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	if format == FormatJSON {
		if len(line) > jsonLineCap {
			return LevelUnknown, 0
		}
		level, _, minute := jsonMeta(line)
		return level, minute
	}

	// Decode a small prefix only; metadata lives at the front.
	prefix := line
	if len(prefix) > metaPrefixLen {
		prefix = prefix[:metaPrefixLen]
	}
	s := string(prefix)

	var minute int64
	if _, mk, ok := ParseTimestampKey(s); ok {
		minute = mk
	}
	return DetectLevel(s), minute
}
