// Package auth locates the bearer token a client presents when dialing
// the gateway and inspects it without verifying the signature.
//
// Discovery order matches the rest of the coven tooling: the COVEN_TOKEN
// environment variable wins, then the token file under the user's config
// directory ($XDG_CONFIG_HOME/coven/token, defaulting to ~/.config).
// A missing token is not fatal; the connection is simply anonymous and
// the gateway decides whether to accept it.
//
// Inspect exists because the signing secret lives gateway-side. The
// client can still decode the claims to show who the token belongs to
// and warn when it has already expired, instead of dialing and getting
// a rejection it cannot explain.
package auth
