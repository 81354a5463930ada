// Package server provides HTTP routing, middleware, and OAuth handling for the CLI and the melodari service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [Middleware] runs in the order it was added; the first added is the outermost wrapper.
// The [BasicRouter] implementation uses [http.ServeMux] method patterns.
//
// # OAuth Proxy
//
// [AuthProxyHandler] keeps client secrets on the server. It builds authorize URLs, exchanges
// authorization codes and refreshes tokens for clients that must not hold the secret.
// Provider rejections map to 401, transport failures to 500.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the redirect leg of a CLI login. It validates the state parameter,
// exchanges the authorization code and sends the result through a channel. Only the first
// callback is processed.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
