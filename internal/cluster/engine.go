// Package cluster groups log lines by normalized message signature.
//
// Working memory is O(distinct signatures), not O(line count). That is the
// engine's documented limit: logs with pathologically high message
// cardinality degrade the bound gracefully but never to O(1).
package cluster

import (
	"context"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/coffersTech/loglens/internal/index"
	"github.com/coffersTech/loglens/internal/logfile"
)

// MaxSamples caps per-cluster sample retention so memory stays bounded
// regardless of cluster size.
const MaxSamples = 5

const cancelCheckLines = 4096

// Entry is one cluster of lines sharing a normalized signature.
type Entry struct {
	Signature string
	Count     int
	FirstLine int
	LastLine  int
	Samples   []int // up to MaxSamples line ids, in encounter order
}

// Run performs a single pass over src, normalizing each line's message and
// aggregating per signature. The map is keyed by the blake2b-256 digest of
// the signature so keys stay fixed-size. Results are sorted by descending
// count, ties broken by first occurrence.
func Run(ctx context.Context, ix *index.LineIndex, lf *logfile.LogFile, src index.Source, progress func(done, total int64)) ([]Entry, error) {
	groups := make(map[[blake2b.Size256]byte]*Entry)

	total := src.Len()
	for row := 0; row < total; row++ {
		if row%cancelCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if progress != nil && row > 0 {
				progress(int64(row), int64(total))
			}
		}

		id := src.LineID(row)
		_, msg := index.RowText(lf, ix, id)
		sig := Normalize(msg)
		key := blake2b.Sum256([]byte(sig))

		e, ok := groups[key]
		if !ok {
			e = &Entry{
				Signature: sig,
				FirstLine: id,
			}
			groups[key] = e
		}
		e.Count++
		e.LastLine = id
		if len(e.Samples) < MaxSamples {
			e.Samples = append(e.Samples, id)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(groups))
	for _, e := range groups {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].FirstLine < entries[j].FirstLine
	})

	if progress != nil {
		progress(int64(total), int64(total))
	}
	return entries, nil
}
