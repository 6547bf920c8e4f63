package llm

import (
	"regexp"
	"strings"
)

type ReplyKind int

const (
	ReplyPlain ReplyKind = iota
	ReplyQuery
)

func (k ReplyKind) String() string {
	if k == ReplyQuery {
		return "query"
	}
	return "plain"
}

// Reply is a model answer, optionally carrying one embedded SQL query.
type Reply struct {
	Kind  ReplyKind
	Text  string
	Query string

	blockStart, blockEnd int
}

const fenceClose = "```"

var fenceOpen = regexp.MustCompile("(?i)```sql")

// ParseReply extracts the first fenced sql block. Unterminated or empty
// blocks leave the reply as plain text.
func ParseReply(text string) Reply {
	plain := Reply{Kind: ReplyPlain, Text: text}

	loc := fenceOpen.FindStringIndex(text)
	if loc == nil {
		return plain
	}

	open, bodyStart := loc[0], loc[1]
	rel := strings.Index(text[bodyStart:], fenceClose)
	if rel < 0 {
		return plain
	}
	bodyEnd := bodyStart + rel

	q := strings.TrimSpace(text[bodyStart:bodyEnd])
	if q == "" {
		return plain
	}

	return Reply{
		Kind:       ReplyQuery,
		Text:       text,
		Query:      q,
		blockStart: open,
		blockEnd:   bodyEnd + len(fenceClose),
	}
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// Prose returns the reply text without its query block.
func (r Reply) Prose() string {
	if r.Kind != ReplyQuery {
		return strings.TrimSpace(r.Text)
	}
	s := r.Text[:r.blockStart] + r.Text[r.blockEnd:]
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))
}
