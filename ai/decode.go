package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFenceRe     = regexp.MustCompile("```[a-zA-Z]*")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// CleanJSON normalizes the loosely-formed JSON that inference backends
// tend to produce: stray code fences, trailing commas, prose around a
// dominant top-level object. It returns its best guess at the
// embedded object; decoding may still fail, in which case callers
// should fall back to a default value.
func CleanJSON(raw string) string {
	if raw == "" {
		return raw
	}
	s := codeFenceRe.ReplaceAllString(raw, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	if first := strings.Index(s, "{"); first > 0 {
		s = s[first:]
	}
	if last := strings.LastIndex(s, "}"); last > 0 {
		s = s[:last+1]
	}
	return strings.TrimSpace(s)
}

// DecodeOrDefault runs raw through normalize, decodes the result into
// a value of type T, and returns def on any failure. It never returns
// an error: degraded transform output becomes a well-formed default so
// one bad response cannot abort a run.
func DecodeOrDefault[T any](raw string, normalize func(string) string, def T) (T, bool) {
	if raw == "" {
		return def, false
	}
	if normalize != nil {
		raw = normalize(raw)
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return def, false
	}
	return out, true
}
