package types

// ProgressSink receives byte-level progress from the streaming engines and
// exposes the shared cancel flag so long writes can stop within one chunk.
// Implementations must be safe for concurrent use; the engines call them from
// the pipeline goroutine while pollers read snapshots elsewhere.
type ProgressSink interface {
	// Add records that delta more bytes were processed.
	Add(delta uint64)
	// Cancelled reports whether an external cancel request is pending.
	Cancelled() bool
}
