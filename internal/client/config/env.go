package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "HK_"

// parseEnv overlays cfg with HK_* variables. Values from the dotenv file are
// used only when the real environment does not define the same key.
func parseEnv(cfg *Config, args []string, lookup func(string) (string, bool)) error {
	fileVars, err := readDotEnv(flagx.EnvFilePath(args))
	if err != nil {
		return err
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			return v, true
		}
		v, ok := fileVars[envPrefix+key]
		return v, ok && v != ""
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("BACKEND_URL", &cfg.BackendURL)
	str("API_KEY", &cfg.APIKey)
	str("REST_PATH", &cfg.RestPath)
	str("AUTH_PATH", &cfg.AuthPath)
	str("SESSION_DB", &cfg.SessionDBPath)
	str("SESSION_SECRET", &cfg.SessionSecret)
	str("REDIRECT_URL", &cfg.RedirectURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	dur("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	dur("SEARCH_DEBOUNCE", &cfg.SearchDebounce)

	if v, ok := get("REQUESTS_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_SECOND: %w", envPrefix, err))
		} else {
			cfg.RequestsPerSecond = f
		}
	}
	if v, ok := get("PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPAGE_SIZE: %w", envPrefix, err))
		} else {
			cfg.PageSize = n
		}
	}

	return errors.Join(errs...)
}

// readDotEnv reads path, or ./.env when path is empty. A missing default
// file is not an error; a missing explicit file is.
func readDotEnv(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return vars, nil
}
