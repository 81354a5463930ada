// Package services implements the [MusicProvider] interface for Google (YouTube) and Spotify.
//
// # Provider Interface
//
// Both clients expose the same operations so playlist code can work uniformly across platforms.
// Access tokens are passed on every call; token storage and refresh policy live in the auth package.
//
// # Google Implementation
//
// [YouTubeService] calls the YouTube Data API v3 with a bearer token. Adding items issues one
// request per video because the API has no batch insert.
//
// # Spotify Implementation
//
// [SpotifyService] wraps github.com/zmb3/spotify/v2. Adding items is a single batch request.
//
// # Token Refresh
//
// Refresh needs the OAuth client secret, so clients delegate it to a [Refresher]:
//   - [TokenProxy] : calls the melodari server's /auth/{provider}/refresh route
//   - [OAuthRefresher] : talks to the provider's token endpoint directly (used by the server itself)
//
// # Error Handling
//
// Responses are classified into typed errors from the shared package:
//   - [shared.AuthError] : HTTP 401, the token was rejected
//   - [shared.RequestError] : any other non-2xx status, with status and body
//   - [shared.NetworkError] : transport failure, no response
//
// Only HTTP 429 is retried, with exponential backoff honouring Retry-After.
package services
