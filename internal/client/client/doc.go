// Package client is the HTTP transport to the backend-as-a-service used by
// the HealthKeeper client.
//
// # Overview
//
// The package provides:
//  1. A table query builder over the REST gateway (From → Select/Eq/IsNull/
//     ILikeAny/Order/Limit/Offset → Execute, Count, Insert, Update).
//  2. Named remote procedure calls (RPC).
//  3. The password-grant auth endpoints: sign-in, sign-up, logout, user fetch
//     and user update.
//
// Every request carries the public API key and an Authorization header with
// the current session token (or the API key when anonymous). The token is
// read from a TokenSource on each call, so the client never caches identity.
//
// # Error Handling
//
// Non-2xx answers become *APIError. APIError matches common.ErrUnauthorized,
// common.ErrConflict, common.ErrNotFound and common.ErrUnavailable through
// errors.Is. Connection failures wrap common.ErrUnavailable.
// IsFunctionNotFound and IsUniqueViolation classify errors for the RPC
// gateway and repositories.
//
// Concurrency & Contexts
//
// A Client is safe for concurrent use. All operations accept context.Context
// and honor cancellation.
package client
