package pipeline

// Status of a segment in a progress event
type Status string

const (
	StatusTranscribing Status = "transcribing"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// Progress is emitted around each segment. Text is the transcript so far.
type Progress struct {
	RunID  string  `json:"run_id"`
	Index  int     `json:"index"`
	Total  int     `json:"total"`
	Status Status  `json:"status"`
	Text   string  `json:"text"`
	Ratio  float64 `json:"ratio"`
	Error  string  `json:"error,omitempty"`
}

// ProgressFunc receives progress events; it must not block for long
type ProgressFunc func(Progress)

func (f ProgressFunc) emit(p Progress) {
	if f != nil {
		f(p)
	}
}
