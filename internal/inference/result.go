package inference

import (
	"fmt"
	"strings"
)

// LabeledScore is one ranked class.
type LabeledScore struct {
	Index       int     `json:"index"`
	Label       string  `json:"label"`
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Sentence renders the score the way the UI shows it.
func (s LabeledScore) Sentence() string {
	return fmt.Sprintf("This image likely belongs to %s with %.2f%% confidence.", s.Name, 100*s.Probability)
}

// Result is the top-k of one prediction, highest probability first.
type Result []LabeledScore

// Text joins one sentence per entry with newlines.
func (r Result) Text() string {
	lines := make([]string, len(r))
	for i, s := range r {
		lines[i] = s.Sentence()
	}
	return strings.Join(lines, "\n")
}
