package cluster

import (
	"regexp"
	"strings"
)

// Variable-token classes replaced during normalization. Digit runs are
// replaced last so GUIDs, hex tokens, IPs and timestamps are recognized
// as their own classes first; bare timestamps that survive earlier rules
// collapse under the digit rule.
var (
	reDoubleQuoted = regexp.MustCompile(`"[^"]*"`)
	reSingleQuoted = regexp.MustCompile(`'[^']*'`)
	reGUID         = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	reHex          = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	reIP           = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	reEmail        = regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w+\b`)
	rePath         = regexp.MustCompile(`([A-Za-z]:\\|/)[\w\-/\\.]+`)
	reNum          = regexp.MustCompile(`\b\d+\b`)
	reBrackets     = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}`)
	reMultiWS      = regexp.MustCompile(`\s+`)
)

// maxSignatureLen caps signatures so monster lines cannot produce
// monster keys.
const maxSignatureLen = 180

// Normalize turns a message into its cluster signature by replacing
// variable tokens with fixed placeholders. Two lines cluster together iff
// their signatures are byte-identical.
func Normalize(msg string) string {
	s := strings.TrimSpace(msg)
	s = reDoubleQuoted.ReplaceAllString(s, "<str>")
	s = reSingleQuoted.ReplaceAllString(s, "<str>")
	s = reGUID.ReplaceAllString(s, "<guid>")
	s = reHex.ReplaceAllString(s, "<hex>")
	s = reIP.ReplaceAllString(s, "<ip>")
	s = reEmail.ReplaceAllString(s, "<email>")
	s = rePath.ReplaceAllString(s, "<path>")
	s = reNum.ReplaceAllString(s, "<num>")
	s = reBrackets.ReplaceAllString(s, " ")
	s = strings.TrimSpace(reMultiWS.ReplaceAllString(s, " "))
	if len(s) > maxSignatureLen {
		s = s[:maxSignatureLen] + "…"
	}
	return s
}
