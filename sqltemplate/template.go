// Package sqltemplate performs placeholder substitution in parameterized
// SQL text. Tokens have the exact shape {{ identifier }} (whitespace
// optional, identifier a possibly-empty run of word characters) and are
// spliced verbatim: no escaping, no recursive expansion.
package sqltemplate

import (
	"fmt"
	"regexp"
	"strings"
)

var tokenRE = regexp.MustCompile(`\{\{\s*(\w*)\s*\}\}`)

// Substitute replaces every placeholder token in text with its mapped
// value, left to right. An unmapped placeholder aborts the whole call;
// partial output is never returned. Text without tokens passes through
// unchanged.
func Substitute(text string, subs map[string]string) (string, error) {
	matches := tokenRE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	var out strings.Builder
	last := 0
	for _, m := range matches {
		key := text[m[2]:m[3]]
		val, ok := subs[key]
		if !ok {
			return "", fmt.Errorf("no substitution given for placeholder %q", key)
		}
		out.WriteString(text[last:m[0]])
		out.WriteString(val)
		last = m[1]
	}
	out.WriteString(text[last:])
	return out.String(), nil
}
