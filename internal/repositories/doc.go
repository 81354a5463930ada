// Package repositories implements SQLite persistence for profiles, OAuth tokens and conversion history.
//
// Key Implementations:
//   - [ProfileRepository] : per-account profile with cached playlists stored as JSON columns
//   - [TokenRepository] : one token pair per provider, usable as an auth token store
//   - [ConversionRepository] : history of cross-platform playlist copies
//
// Sequence numbers give stable, human-readable ordering (profile #1, conversion #15) independent of UUIDs.
// [NextSequence] atomically increments per-table counters kept in dedicated sequence tables.
package repositories
