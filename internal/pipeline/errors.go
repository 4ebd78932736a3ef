package pipeline

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when an analysis is requested while another
// run is active. Runs are never queued or interleaved.
var ErrRunInProgress = errors.New("analysis already in progress")

// EmptyCorpusError reports a build that succeeded but yielded no qualifying
// products or reviews. It is distinct from a schema failure: the columns
// resolved, the data just had nothing to score.
type EmptyCorpusError struct {
	Source string
}

func (e *EmptyCorpusError) Error() string {
	return fmt.Sprintf("no qualifying reviews found in %s", e.Source)
}
