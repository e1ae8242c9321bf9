package turn

import (
	"regexp"
	"strings"

	"github.com/haivivi/edutalk/pkg/retrieval"
)

// QueryPlaceholder is replaced by the transcript in the prompt template.
const QueryPlaceholder = "<query>"

// NoSnippets fills the reference placeholder when retrieval has nothing.
const NoSnippets = "No timetable data."

var placeholder = regexp.MustCompile(`\[(.*?)\]`)

// Augment builds the generation prompt: every <query> in template becomes
// query, then the first bracketed placeholder is replaced by the formatted
// snippets (or NoSnippets when there are none). Later brackets are kept.
func Augment(template, query string, snippets []string) string {
	prompt := strings.ReplaceAll(template, QueryPlaceholder, query)
	block := NoSnippets
	if len(snippets) > 0 {
		block = retrieval.FormatSnippets(snippets)
	}
	loc := placeholder.FindStringIndex(prompt)
	if loc == nil {
		return prompt
	}
	return prompt[:loc[0]] + block + prompt[loc[1]:]
}
