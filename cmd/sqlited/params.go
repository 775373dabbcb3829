package main

import "regexp"

// stringLiteral matches a single-quoted SQL string literal, including
// the doubled-quote escape convention ('' inside a literal).
var stringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)

// countPlaceholders estimates a prepared statement's parameter count by
// counting bare '?' positional placeholders outside of string literals.
// database/sql does not expose the driver's own NumInput() publicly, so
// PrepareAck.NumParams has to be recovered this way rather than read off
// the compiled statement directly.
func countPlaceholders(sql string) int {
	stripped := stringLiteral.ReplaceAllString(sql, "")
	n := 0
	for _, r := range stripped {
		if r == '?' {
			n++
		}
	}
	return n
}
