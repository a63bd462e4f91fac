package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/healthkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Only the flags listed in the package doc are considered; everything else
// in args is left for other components.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-u", "-k", "-d", "-t", "-q", "-s", "-p", "-l"})

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BackendURL, "u", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.APIKey, "k", cfg.APIKey, "public API key")
	fs.StringVar(&cfg.SessionDBPath, "d", cfg.SessionDBPath, "session database path")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")
	fs.Float64Var(&cfg.RequestsPerSecond, "q", cfg.RequestsPerSecond, "outbound requests per second")
	fs.DurationVar(&cfg.SearchDebounce, "s", cfg.SearchDebounce, "search debounce interval")
	fs.IntVar(&cfg.PageSize, "p", cfg.PageSize, "default page size")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
