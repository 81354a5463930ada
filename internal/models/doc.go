// Package models defines the domain entities shared by every melodari package.
//
// The package contains two categories of types:
//
// 1. Provider data: values fetched from a music platform
//   - [Playlist] : Playlist metadata plus any songs fetched so far
//   - [Song] : Song metadata used for cross-platform matching
//   - [Account] : The signed-in user as reported by a provider
//   - [Tokens] : An OAuth token pair for one provider
//
// 2. Persistent entities: records owned by the profile store
//   - [Profile] : The user profile, platform links and cached playlists
//   - [Conversion] : History entry for a cross-platform playlist copy
package models
