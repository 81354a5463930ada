// Package web implements the melodari JSON API over [app.App].
//
// # Routes
//
//	GET  /api/{provider}/status                → link state and account
//	GET  /api/{provider}/playlists             → cached and fresh playlists
//	POST /api/{provider}/playlists/refresh     → refetch from the provider
//	GET  /api/{provider}/playlists/{id}/songs  → songs of one playlist
//	GET  /api/{provider}/search?q=             → top hit for a query
//	POST /api/{provider}/logout                → unlink the provider
//	GET  /api/playlists                        → playlists of every platform merged by title
//	GET  /api/profile                          → bound profile
//	GET  /api/history?limit=                   → recent conversions
//	POST /api/convert                          → copy a playlist to another platform
//
// Errors are answered as {"message": ...} with the status chosen by [server.StatusFor].
//
// # Progress Streaming
//
// A convert request sent with "Accept: text/event-stream" is answered with Server-Sent Events:
// one "progress" event per [tasks.ProgressUpdate], then a single "result" or "error" event.
package web
