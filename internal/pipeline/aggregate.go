package pipeline

import "strings"

// Fragment is the transcription result of one segment
type Fragment struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Aggregate joins fragment texts in index order with single spaces.
// Each fragment is trimmed before joining, so surrounding whitespace inside
// the transcript collapses to one space and blank fragments add nothing.
// Failed placeholder fragments keep their slot but contribute no text.
func Aggregate(fragments []Fragment, segmentCount int) (string, error) {
	if len(fragments) != segmentCount {
		return "", &IncompleteTranscriptError{Fragments: len(fragments), Segments: segmentCount}
	}

	var transcript string
	for i, f := range fragments {
		if f.Index != i {
			return "", &IncompleteTranscriptError{Fragments: len(fragments), Segments: segmentCount}
		}
		if f.Failed {
			continue
		}
		transcript = appendText(transcript, f.Text)
	}

	return transcript, nil
}

// appendText adds text to acc separated by one space, ignoring blank text
func appendText(acc, text string) string {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return acc
	case acc == "":
		return text
	default:
		return acc + " " + text
	}
}
