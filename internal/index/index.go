package index

// Severity levels, dictionary encoded into LineIndex.LvlCol.
const (
	LevelTrace   = 0
	LevelDebug   = 1
	LevelInfo    = 2
	LevelWarn    = 3
	LevelError   = 4
	LevelFatal   = 5
	LevelUnknown = 255
)

// Format selects how line metadata is extracted. It is explicit
// configuration; the engine never sniffs the format.
type Format int

const (
	FormatPlain Format = iota
	FormatJSON
)

// LineIndex stores line records in columnar form, one entry per physical
// line in file order. Immutable once published; a reopen builds a fresh
// index, never mutates this one.
type LineIndex struct {
	OffCol []int64  // byte offset of line start
	LenCol []uint32 // line length excluding terminator
	LvlCol []uint8  // severity, LevelUnknown if undetected
	MinCol []int64  // minute key YYYYMMDDHHMM, 0 if unparsed

	FileSize int64
	Format   Format
}

// Len returns the number of indexed lines.
func (ix *LineIndex) Len() int {
	return len(ix.OffCol)
}

// EncodeLevel converts a level token to its uint8 code.
// WARNING and CRITICAL canonicalize to WARN and FATAL.
func EncodeLevel(l string) uint8 {
	switch l {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL", "CRITICAL":
		return LevelFatal
	default:
		return LevelUnknown
	}
}

// DecodeLevel converts a uint8 level code to its canonical token.
func DecodeLevel(l uint8) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}
