// Package cli provides the interactive HealthKeeper command-line client.
//
// It builds the client services from configuration, restores the persisted
// session and runs a REPL over the session manager and the resource
// repositories.
//
// Key features:
//   - Login / Register / Logout, with the session kept across restarts
//   - Access links: consume an emailed link, choose a first-access password
//   - List and search diseases, vehicles, expenses and administrators
//   - Record vehicle expenses, soft-delete records
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
