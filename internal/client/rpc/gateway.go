// Package rpc invokes named remote procedures and degrades to a direct table
// write when the procedure is not deployed on the server.
package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
	"github.com/goccy/go-json"
)

// Path tells which route produced a Result.
type Path int

const (
	PathProcedure Path = iota + 1
	PathFallback
)

func (p Path) String() string {
	switch p {
	case PathProcedure:
		return "procedure"
	case PathFallback:
		return "fallback"
	}
	return "unknown"
}

// Result is the normalized outcome of an invocation.
type Result struct {
	Path    Path
	Success bool
	Message string
	ID      string
}

// Fallback performs the equivalent direct table write. The gateway sets
// Result.Path itself.
type Fallback func(ctx context.Context) (Result, error)

// Error is a procedure failure other than "not found": a backend rejection,
// a success=false answer or a malformed answer.
type Error struct {
	Procedure string
	Status    int
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("rpc %s: %d: %s", e.Procedure, e.Status, e.Message)
	}
	return fmt.Sprintf("rpc %s: %s", e.Procedure, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Caller is the transport the gateway needs.
type Caller interface {
	RPC(ctx context.Context, name string, params any, out any) error
}

// Gateway runs remote procedures. When the backend answers that a
// procedure does not exist, the caller's fallback runs once instead and the
// result is tagged PathFallback.
type Gateway struct {
	c   Caller
	log logging.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(l logging.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// NewGateway returns a Gateway calling procedures through c.
func NewGateway(c Caller, opts ...Option) *Gateway {
	g := &Gateway{c: c, log: logging.Discard()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Invoke calls procedure with params. When the server reports the
// procedure does not exist, fallback runs once and its result is returned
// tagged PathFallback. Uniqueness violations on either path match
// common.ErrConflict.
func (g *Gateway) Invoke(ctx context.Context, procedure string, params any, fallback Fallback) (Result, error) {
	var raw json.RawMessage
	err := g.c.RPC(ctx, procedure, params, &raw)
	if err == nil {
		return decodeResult(procedure, raw)
	}
	if !client.IsFunctionNotFound(err) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, &Error{
			Procedure: procedure,
			Status:    client.StatusOf(err),
			Message:   client.MessageOf(err),
			Err:       err,
		}
	}
	if fallback == nil {
		return Result{}, &Error{Procedure: procedure, Status: client.StatusOf(err), Message: "procedure not found", Err: err}
	}

	g.log.Warn(ctx, "procedure missing, using table fallback", "procedure", procedure)
	res, ferr := fallback(ctx)
	if ferr != nil {
		return Result{}, fmt.Errorf("fallback for %s: %w", procedure, ferr)
	}
	res.Path = PathFallback
	return res, nil
}

// answer is the {success, message, id} object procedures return.
type answer struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	ID      json.RawMessage `json:"id"`
}

func decodeResult(procedure string, raw json.RawMessage) (Result, error) {
	raw = bytes.TrimSpace(raw)
	malformed := &Error{Procedure: procedure, Message: "malformed procedure answer"}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Result{}, malformed
	}

	// a bare scalar answer is the new row id
	if raw[0] != '{' {
		id := scalarID(raw)
		if id == "" {
			return Result{}, malformed
		}
		return Result{Path: PathProcedure, Success: true, ID: id}, nil
	}

	var a answer
	if err := json.Unmarshal(raw, &a); err != nil {
		malformed.Err = err
		return Result{}, malformed
	}
	id := scalarID(a.ID)
	if a.Success == nil && id == "" {
		return Result{}, malformed
	}
	if a.Success != nil && !*a.Success {
		msg := a.Message
		if msg == "" {
			msg = "procedure reported failure"
		}
		return Result{}, &Error{Procedure: procedure, Message: msg}
	}
	return Result{Path: PathProcedure, Success: true, Message: a.Message, ID: id}, nil
}

func scalarID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String()
		}
	}
	return ""
}

// IsError reports whether err carries an *Error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
