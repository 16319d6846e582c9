package search

import (
	"strings"
)

// Query is a parsed message search.
// It decouples what the user typed from what the index needs.
type Query struct {
	RawInput string // The original input
	Terms    string // Free text matched against message bodies
	Sender   string // Only messages written by this identity, empty for both members
}

// ParseQuery reads command-line style filters out of a raw search.
// Example: /find deposit refund --from landlord@x.com
func ParseQuery(input string) Query {
	query := Query{RawInput: input}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if part == "--from" && i+1 < len(parts) {
			query.Sender = parts[i+1]
			i++ // Skip the value part in next iteration
			continue
		}

		// Slash commands are not search terms
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}

// IsEmpty reports whether there is nothing to filter on.
func (q Query) IsEmpty() bool {
	return q.Terms == "" && q.Sender == ""
}
