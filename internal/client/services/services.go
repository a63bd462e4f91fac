// Package services wires the client layer together: local database, backend
// transport, session manager, RPC gateway and repositories. A Services value
// is built once at start-up and passed to its consumers.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/config"
	"github.com/dmitrijs2005/healthkeeper/internal/client/listing"
	"github.com/dmitrijs2005/healthkeeper/internal/client/localdb"
	"github.com/dmitrijs2005/healthkeeper/internal/client/magiclink"
	"github.com/dmitrijs2005/healthkeeper/internal/client/models"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
	"github.com/dmitrijs2005/healthkeeper/internal/client/rpc"
	"github.com/dmitrijs2005/healthkeeper/internal/client/session"
	"github.com/dmitrijs2005/healthkeeper/internal/client/sessionstore"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
)

// Options overrides pieces New would otherwise build itself.
type Options struct {
	Logger     logging.Logger
	HTTPClient *http.Client
}

// Services holds the process-wide components. Everything in it is created
// once by New and shared; Close releases the local database.
type Services struct {
	Config   *config.Config
	Log      logging.Logger
	DB       *sql.DB
	Client   *client.Client
	Store    sessionstore.Store
	Sessions *session.Manager
	Gateway  *rpc.Gateway
	Repos    *models.Repositories
}

// New builds every component from cfg and restores the persisted session.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Services, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New(os.Stderr, cfg.LogLevel)
	}

	db, err := localdb.Open(ctx, cfg.SessionDBPath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	// the manager is the token source, but needs the client first
	var sessions *session.Manager
	tokens := client.TokenFunc(func() string {
		if sessions == nil {
			return ""
		}
		return sessions.AccessToken()
	})

	copts := []client.Option{
		client.WithPaths(cfg.RestPath, cfg.AuthPath),
		client.WithRateLimit(cfg.RequestsPerSecond),
		client.WithTokenSource(tokens),
		client.WithLogger(log.With("component", "client")),
	}
	if opts.HTTPClient != nil {
		copts = append(copts, client.WithHTTPClient(opts.HTTPClient))
	}
	copts = append(copts, client.WithTimeout(cfg.RequestTimeout))

	c, err := client.New(cfg.BackendURL, cfg.APIKey, copts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var sopts []sessionstore.Option
	if cfg.SessionSecret != "" {
		sopts = append(sopts, sessionstore.WithSecret([]byte(cfg.SessionSecret)))
	}
	store := sessionstore.NewKVStore(metadata.NewSQLiteRepository(db), sopts...)

	sessions = session.NewManager(c, store, session.WithLogger(log.With("component", "session")))
	gw := rpc.NewGateway(c, rpc.WithLogger(log.With("component", "rpc")))
	repos := models.NewRepositories(gw, c, repository.WithLogger(log.With("component", "repository")))

	s := &Services{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Client:   c,
		Store:    store,
		Sessions: sessions,
		Gateway:  gw,
		Repos:    repos,
	}
	sessions.Restore(ctx)
	return s, nil
}

// NewLinkFlow starts a magic-link flow over the shared session manager.
func (s *Services) NewLinkFlow(hooks ...magiclink.TransitionFunc) *magiclink.Flow {
	opts := []magiclink.Option{magiclink.WithLogger(s.Log.With("component", "magiclink"))}
	for _, h := range hooks {
		opts = append(opts, magiclink.OnTransition(h))
	}
	return magiclink.NewFlow(s.Sessions, opts...)
}

// NewListing builds a list controller with the configured page size and
// search debounce.
func NewListing[T any](ctx context.Context, s *Services, l listing.Lister[T]) *listing.Controller[T] {
	return listing.NewController[T](ctx, l, s.Config.PageSize,
		listing.WithDebounce(s.Config.SearchDebounce),
		listing.WithLogger(s.Log.With("component", "listing")),
	)
}

// Close releases the local database.
func (s *Services) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
