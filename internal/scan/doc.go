// Package scan wires four stage.Stage instances into the integrity scan
// pipeline:
//
//	traverser (dir path)  -> reader (Progress) -> hasher (Chunk) -> sink (Digest) -> changes
//
// The traverser lists directories and resubmits subdirectories to itself.
// The reader issues one positioned read per item and resubmits the next
// offset, so a large file never occupies a worker for longer than one chunk.
// The hasher folds chunks into per-file SHA-256 accumulators in index order
// and emits a digest once the end-of-file sentinel has been folded. The sink
// compares each digest against the baseline store, records additions and
// modifications, and forwards them as Change values.
//
// Scanner builds a fresh pipeline for every scan and serializes scans.
package scan
