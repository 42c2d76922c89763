// Package placeholder substitutes {{column}} tokens in HTML templates with
// values from a dataset row.
//
// Values are inserted verbatim, without HTML escaping. Templates are
// operator-authored and rows are trusted: do not render recipient-supplied
// templates with this package.
package placeholder

import (
	"regexp"
)

// Row is one dataset record: column name to cell value.
type Row map[string]string

// token matches {{identifier}} non-greedily. Identifiers do not span lines.
var token = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Render replaces every {{key}} in template with row[key]. Tokens whose key
// is missing from row, or whose value is empty, are left untouched.
// Substituted values are not scanned again.
func Render(template string, row Row) string {
	return token.ReplaceAllStringFunc(template, func(match string) string {
		if v := row[key(match)]; v != "" {
			return v
		}
		return match
	})
}

// Identifiers returns the distinct keys referenced by template in order of
// first appearance.
func Identifiers(template string) []string {
	var (
		seen = make(map[string]struct{})
		ids  []string
	)
	for _, m := range token.FindAllStringSubmatch(template, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}

// Unresolved returns the keys Render would leave verbatim for row.
func Unresolved(template string, row Row) []string {
	var missing []string
	for _, id := range Identifiers(template) {
		if row[id] == "" {
			missing = append(missing, id)
		}
	}
	return missing
}

func key(match string) string {
	return match[2 : len(match)-2]
}
