package query

import (
	"fmt"
	"regexp"
	"strings"
)

// writeKeywordPattern matches any statement keyword that mutates state.
// Matching happens on comment-stripped SQL so keywords cannot hide
// behind -- or /* */ sequences.
var writeKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|REPLACE|UPSERT|MERGE|COPY|GRANT|REVOKE)\b`)

var (
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Guard rejects statements that could mutate the market-data store.
// Returns the comment-stripped statement on success.
func Guard(sqlText string) (string, error) {
	stripped := stripComments(sqlText)

	if strings.TrimSpace(stripped) == "" {
		return "", ErrEmptyQuery
	}

	if m := writeKeywordPattern.FindString(stripped); m != "" {
		return "", fmt.Errorf("%w: %s statements are not allowed", ErrNotReadOnly, strings.ToUpper(m))
	}

	return stripped, nil
}

// stripComments removes -- line comments and /* */ block comments.
func stripComments(sqlText string) string {
	out := blockCommentPattern.ReplaceAllString(sqlText, " ")
	out = lineCommentPattern.ReplaceAllString(out, " ")
	return out
}
