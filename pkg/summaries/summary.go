// Package summaries builds and persists per-call summary records. Records
// are append-only; a completed capture session adds one and nothing ever
// mutates it afterwards.
package summaries

import (
	"regexp"
	"strings"
	"time"
)

// Summary is the session-local persisted record for one completed call.
type Summary struct {
	URL        string `json:"url"`
	Timestamp  int64  `json:"timestamp"` // epoch millis
	Transcript string `json:"transcript"`
	Words      int    `json:"words"`
	Greetings  bool   `json:"greetings"`
	Rude       bool   `json:"rude"`
}

var (
	greetingRe = regexp.MustCompile(`(?i)diwali|happy diwali|festival|holi|eid|christmas`)
	rudeRe     = regexp.MustCompile(`(?i)shut up|idiot|stupid|don'?t care|useless`)
)

// Build joins the session's final transcript segments in order and runs the
// keyword heuristics over the whole text.
func Build(url string, transcripts []string) Summary {
	joined := strings.Join(transcripts, " ")
	return Summary{
		URL:        url,
		Timestamp:  time.Now().UnixMilli(),
		Transcript: joined,
		Words:      countWords(joined),
		Greetings:  greetingRe.MatchString(joined),
		Rude:       rudeRe.MatchString(joined),
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
