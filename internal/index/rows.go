package index

import (
	"strings"

	"github.com/coffersTech/loglens/internal/logfile"
)

// rowLineCap guards row materialization against single mega-lines.
const rowLineCap = 256 * 1024

// RowText derives the display fields for one physical line: the timestamp
// text (empty when unparsed) and the message body with the timestamp
// prefix trimmed. Shared by the row cache, the cluster pass and export.
func RowText(lf *logfile.LogFile, ix *LineIndex, id int) (ts, msg string) {
	raw := lf.LineAt(ix.OffCol[id], rowLineCap)
	if ix.Format == FormatJSON {
		return ExtractJSONRow(raw)
	}

	line := string(raw)
	if _, _, ok := ParseTimestampKey(line); ok {
		ts = line[:19]
		msg = strings.TrimLeft(line[19:], " -\t|")
	} else {
		msg = line
	}
	return ts, msg
}
