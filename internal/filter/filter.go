// Package filter evaluates FilterCriteria against a line index, producing
// an immutable ordered view of matching line ids.
package filter

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/coffersTech/loglens/internal/index"
	"github.com/coffersTech/loglens/internal/logfile"
)

// ErrInvalidPattern is returned before any scanning begins when the regex
// does not compile.
var ErrInvalidPattern = errors.New("invalid filter pattern")

const cancelCheckLines = 4096

// maxLineBytes caps how much of a single line the regex sees.
const maxLineBytes = 1024 * 1024

// Criteria is a tagged filter configuration. Absent fields accept all for
// their dimension; present fields combine with AND semantics. The time
// range is inclusive, expressed in minute keys (YYYYMMDDHHMM).
type Criteria struct {
	Pattern   string  // regex over the raw line, "" = accept all
	Levels    []uint8 // accepted level codes, nil = accept all
	MinMinute int64   // 0 = unbounded
	MaxMinute int64   // 0 = unbounded
}

// compiled is the eagerly validated form of Criteria.
type compiled struct {
	re        *regexp.Regexp
	levels    [256]bool
	hasLevels bool
	minMinute int64
	maxMinute int64
}

func (c Criteria) compile() (*compiled, error) {
	cc := &compiled{minMinute: c.MinMinute, maxMinute: c.MaxMinute}
	if c.Pattern != "" {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		cc.re = re
	}
	if len(c.Levels) > 0 {
		cc.hasLevels = true
		for _, l := range c.Levels {
			cc.levels[l] = true
		}
	}
	return cc, nil
}

// Validate reports an ErrInvalidPattern without running the scan. Used by
// the session to fail fast at submission time.
func (c Criteria) Validate() error {
	_, err := c.compile()
	return err
}

// IsEmpty reports whether every dimension accepts all lines.
func (c Criteria) IsEmpty() bool {
	return c.Pattern == "" && len(c.Levels) == 0 && c.MinMinute == 0 && c.MaxMinute == 0
}

// View is an immutable filtered subsequence of line ids, strictly
// increasing. It is superseded by a newer filter result, never mutated.
type View struct {
	ids []int
}

func (v *View) Len() int {
	return len(v.ids)
}

func (v *View) LineID(row int) int {
	return v.ids[row]
}

var _ index.Source = (*View)(nil)

// Apply runs one ordered pass over the index. Level and time membership
// come from the pre-parsed columns; the line bytes are decoded and matched
// against the regex only when those pass. Lines without a parsed minute
// never satisfy a bounded time range. progress receives lines-processed
// counters and may be nil.
func Apply(ctx context.Context, ix *index.LineIndex, lf *logfile.LogFile, crit Criteria, progress func(done, total int64)) (*View, error) {
	cc, err := crit.compile()
	if err != nil {
		return nil, err
	}

	total := ix.Len()
	ids := make([]int, 0, 1024)

	for i := 0; i < total; i++ {
		if i%cancelCheckLines == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if progress != nil && i > 0 {
				progress(int64(i), int64(total))
			}
		}

		if cc.hasLevels && !cc.levels[ix.LvlCol[i]] {
			continue
		}
		if cc.minMinute != 0 || cc.maxMinute != 0 {
			mk := ix.MinCol[i]
			if mk == 0 {
				continue
			}
			if cc.minMinute != 0 && mk < cc.minMinute {
				continue
			}
			if cc.maxMinute != 0 && mk > cc.maxMinute {
				continue
			}
		}
		if cc.re != nil {
			// Expensive check last.
			n := int(ix.LenCol[i])
			if n > maxLineBytes {
				n = maxLineBytes
			}
			line := lf.ReadRange(ix.OffCol[i], n)
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			if !cc.re.Match(line) {
				continue
			}
		}
		ids = append(ids, i)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if progress != nil {
		progress(int64(total), int64(total))
	}
	return &View{ids: ids}, nil
}

// NewView wraps an explicit id list. Test and export helper; ids must be
// strictly increasing.
func NewView(ids []int) *View {
	return &View{ids: ids}
}
