package speech

import "strings"

const (
	reasoningOpen  = "<think>"
	reasoningClose = "</think>"
)

// IsTerminator reports whether token closes a sentence. Only a token that is
// exactly one of ". ! ? :" counts; punctuation embedded in a longer token
// does not split.
func IsTerminator(token string) bool {
	switch token {
	case ".", "!", "?", ":":
		return true
	}
	return false
}

// Assembler turns a stream of generation tokens into sentences.
//
// Tokens between a <think> marker and the matching </think> marker are
// dropped and never reach a sentence or the full text. An Assembler is not
// safe for concurrent use; the generation worker owns it.
type Assembler struct {
	buf         strings.Builder
	text        strings.Builder
	inReasoning bool
}

// Feed consumes one token and returns the sentences it completed, in order.
// At most one sentence is returned per token.
func (a *Assembler) Feed(token string) []string {
	switch {
	case strings.Contains(token, reasoningOpen):
		a.inReasoning = true
		return nil
	case strings.Contains(token, reasoningClose):
		a.inReasoning = false
		return nil
	case a.inReasoning:
		// A terminator inside a reasoning block still closes the visible
		// text buffered before it, but is not itself kept.
		if IsTerminator(token) {
			return a.take()
		}
		return nil
	}

	a.buf.WriteString(token)
	a.text.WriteString(token)
	if !IsTerminator(token) {
		return nil
	}
	return a.take()
}

func (a *Assembler) take() []string {
	if a.buf.Len() == 0 {
		return nil
	}
	s := a.buf.String()
	a.buf.Reset()
	return []string{s}
}

// Flush returns the buffered remainder, if any, and clears it.
func (a *Assembler) Flush() (string, bool) {
	if a.buf.Len() == 0 {
		return "", false
	}
	s := a.buf.String()
	a.buf.Reset()
	return s, true
}

// Text returns everything fed outside reasoning blocks so far.
func (a *Assembler) Text() string {
	return a.text.String()
}

// InReasoning reports whether the assembler is inside a reasoning block.
func (a *Assembler) InReasoning() bool {
	return a.inReasoning
}
