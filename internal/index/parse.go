package index

import (
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// metaPrefixLen bounds how much of a plain line is decoded for metadata
// extraction during the index pass. Level and timestamp both live at the
// front of a sane log line.
const metaPrefixLen = 256

// ParseTimestampKey parses a leading timestamp of the form
//
//	2025-12-24 15:04:05
//	2025-12-24T15:04:05
//	2025-12-24 15:04:05,123
//	2025-12-24 15:04:05.123
//
// and returns a compact second key (YYYYMMDDHHMMSS) and minute key
// (YYYYMMDDHHMM). ok is false when the line carries no such prefix.
func ParseTimestampKey(s string) (secKey, minuteKey int64, ok bool) {
	if len(s) < 19 {
		return 0, 0, false
	}
	if s[4] != '-' || s[7] != '-' || (s[10] != ' ' && s[10] != 'T') || s[13] != ':' || s[16] != ':' {
		return 0, 0, false
	}
	y, ok1 := atoi4(s[0:4])
	mo, ok2 := atoi2(s[5:7])
	d, ok3 := atoi2(s[8:10])
	hh, ok4 := atoi2(s[11:13])
	mm, ok5 := atoi2(s[14:16])
	ss, ok6 := atoi2(s[17:19])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return 0, 0, false
	}
	minuteKey = ((((int64(y)*100+int64(mo))*100+int64(d))*100+int64(hh))*100 + int64(mm))
	secKey = minuteKey*100 + int64(ss)
	return secKey, minuteKey, true
}

// TimeToKeys converts a parsed time to the same compact keys.
func TimeToKeys(t time.Time) (secKey, minuteKey int64) {
	y, mo, d := t.Date()
	hh, mm, ss := t.Clock()
	minuteKey = ((((int64(y)*100+int64(mo))*100+int64(d))*100+int64(hh))*100 + int64(mm))
	return minuteKey*100 + int64(ss), minuteKey
}

func atoi4(s string) (int, bool) {
	n := 0
	for i := 0; i < 4; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func atoi2(s string) (int, bool) {
	n := 0
	for i := 0; i < 2; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

var levelWords = []string{"TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "FATAL", "CRITICAL"}

// DetectLevel scans the front of a plain line for a severity token.
// Fast path looks for space-padded tokens; fallback accepts [INFO],
// (INFO) and INFO: shapes. Returns LevelUnknown when nothing matches.
func DetectLevel(line string) uint8 {
	head := line
	if len(head) > 200 {
		head = head[:200]
	}
	upper := strings.ToUpper(head)
	for _, w := range levelWords {
		if strings.Contains(upper, " "+w+" ") {
			return EncodeLevel(w)
		}
	}
	for _, w := range levelWords {
		if strings.Contains(upper, "["+w+"]") ||
			strings.Contains(upper, "("+w+")") ||
			strings.Contains(upper, w+":") {
			return EncodeLevel(w)
		}
	}
	return LevelUnknown
}

var jsonPool fastjson.ParserPool

// jsonMeta extracts level and timestamp keys from a JSON log line.
// Field aliases: level|severity, timestamp|time|ts. Malformed lines yield
// (LevelUnknown, 0, 0) and stay addressable like any other line.
func jsonMeta(line []byte) (level uint8, secKey, minuteKey int64) {
	p := jsonPool.Get()
	defer jsonPool.Put(p)

	v, err := p.ParseBytes(line)
	if err != nil {
		return LevelUnknown, 0, 0
	}
	level = LevelUnknown
	if lv := jsonString(v, "level", "severity"); lv != "" {
		level = EncodeLevel(strings.ToUpper(lv))
	}
	if ts := jsonString(v, "timestamp", "time", "ts"); ts != "" {
		secKey, minuteKey = parseJSONTime(ts)
	}
	return level, secKey, minuteKey
}

// ExtractJSONRow pulls display fields from a JSON log line: a formatted
// timestamp (empty if absent) and the message body (the raw line when no
// message field exists).
func ExtractJSONRow(line []byte) (ts, msg string) {
	p := jsonPool.Get()
	defer jsonPool.Put(p)

	v, err := p.ParseBytes(line)
	if err != nil {
		return "", string(line)
	}
	if raw := jsonString(v, "timestamp", "time", "ts"); raw != "" {
		if sec, _ := parseJSONTime(raw); sec != 0 {
			ts = formatSecKey(sec)
		}
	}
	msg = jsonString(v, "message", "msg")
	if msg == "" {
		msg = string(line)
	}
	return ts, msg
}

func jsonString(v *fastjson.Value, keys ...string) string {
	for _, k := range keys {
		if b := v.GetStringBytes(k); len(b) > 0 {
			return string(b)
		}
	}
	return ""
}

// parseJSONTime accepts RFC3339 or the plain-text layout.
func parseJSONTime(s string) (secKey, minuteKey int64) {
	if sec, min, ok := ParseTimestampKey(s); ok {
		return sec, min
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		sec, min := TimeToKeys(t)
		return sec, min
	}
	return 0, 0
}

// formatSecKey renders a compact second key as "2006-01-02 15:04:05".
func formatSecKey(sec int64) string {
	var buf [19]byte
	put := func(pos, width int, v int64) {
		for i := width - 1; i >= 0; i-- {
			buf[pos+i] = byte('0' + v%10)
			v /= 10
		}
	}
	put(0, 4, sec/1e10)
	buf[4] = '-'
	put(5, 2, (sec/1e8)%100)
	buf[7] = '-'
	put(8, 2, (sec/1e6)%100)
	buf[10] = ' '
	put(11, 2, (sec/1e4)%100)
	buf[13] = ':'
	put(14, 2, (sec/100)%100)
	buf[16] = ':'
	put(17, 2, sec%100)
	return string(buf[:])
}
