package pipeline

import (
	"golang.org/x/time/rate"
)

// Progress span boundaries: ingestion advances 0-40, scoring 40-100.
const (
	ingestSpanEnd = 40.0
	scoreSpanEnd  = 100.0
)

// ProgressSink receives progress notifications from a running analysis.
// Delivery is one-way and fire-and-forget: implementations must not block,
// and the pipeline may coalesce updates. Within one run the percentage is
// monotonically non-decreasing in [0,100].
type ProgressSink interface {
	Progress(pct float64, message string)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(pct float64, message string)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(pct float64, message string) { f(pct, message) }

// NopSink discards all progress updates.
var NopSink ProgressSink = ProgressFunc(func(float64, string) {})

// throttledSink coalesces progress deliveries to at most perSecond updates,
// always letting terminal (100%) updates through.
type throttledSink struct {
	sink    ProgressSink
	limiter *rate.Limiter
}

// throttle wraps sink with rate limiting. A nil sink becomes NopSink.
func throttle(sink ProgressSink, perSecond float64) ProgressSink {
	if sink == nil {
		return NopSink
	}
	return &throttledSink{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (t *throttledSink) Progress(pct float64, message string) {
	if pct >= scoreSpanEnd || t.limiter.Allow() {
		t.sink.Progress(pct, message)
	}
}

// ingestPct maps an ingestion fraction in [0,1] onto the 0-40 span.
func ingestPct(fraction float64) float64 {
	return clampPct(fraction * ingestSpanEnd)
}

// scorePct maps a scoring fraction in [0,1] onto the 40-100 span.
func scorePct(fraction float64) float64 {
	return clampPct(ingestSpanEnd + fraction*(scoreSpanEnd-ingestSpanEnd))
}

func clampPct(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > scoreSpanEnd {
		return scoreSpanEnd
	}
	return pct
}
