// Package tasks orchestrates playlist operations between music providers with real-time progress reporting.
//
// # Conversion
//
// [PlaylistEngine.Convert] reproduces a playlist on another provider:
//
//  1. Resolve the target: an explicit playlist id, else a case-insensitive exact title match
//     on a fresh listing, else a newly created playlist. Several same-titled playlists fail
//     the conversion instead of guessing.
//  2. Search the target for "{title} {artist}" per source song and keep the top hit.
//     Searches run sequentially by default, or through a bounded pool when
//     [ConvertOptions.Concurrency] is raised; results keep source order either way.
//  3. Add all hits in one call. Songs without a hit are dropped silently.
//
// [PlaylistEngine.ConvertPlaylist] wraps Convert and reports only success or failure.
// A created target playlist is kept even if nothing matched.
//
// # Bulk Export
//
// [PlaylistEngine.BulkExport] writes cached playlists to disk with a rate-limited producer
// and a worker pool, then records a manifest of the run.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data.
// Updates use select with default so reporting never blocks execution.
package tasks
