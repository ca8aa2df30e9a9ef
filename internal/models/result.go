package models

import "time"

// DumpResult is the outcome of one target's backup attempt. Err is set when
// and only when the attempt failed; OutputPath and SizeBytes are only
// meaningful for successful attempts.
type DumpResult struct {
	Target     string
	Succeeded  bool
	OutputPath string
	SizeBytes  int64
	Duration   time.Duration
	Err        error
}

// RunSummary aggregates the outcome of one backup batch.
type RunSummary struct {
	Host          string
	StartTime     time.Time
	Duration      time.Duration
	Results       []DumpResult
	UploadsFailed int
	PruneRemoved  int
}

// Succeeded counts the targets whose dump completed.
func (s *RunSummary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Succeeded {
			n++
		}
	}
	return n
}

// Failed counts the targets whose dump did not complete.
func (s *RunSummary) Failed() int {
	return len(s.Results) - s.Succeeded()
}

// Ok reports whether every target dumped and every requested upload went
// through. It decides the process exit code.
func (s *RunSummary) Ok() bool {
	return s.Failed() == 0 && s.UploadsFailed == 0
}
