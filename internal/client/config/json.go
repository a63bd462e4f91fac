package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/flagx"
	"github.com/goccy/go-json"
)

// Duration accepts either a Go duration string ("500ms") or integer
// nanoseconds in JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from zero so a partial file only overrides
// what it names.
type JsonConfig struct {
	BackendURL        *string   `json:"backend_url"`
	APIKey            *string   `json:"api_key"`
	RestPath          *string   `json:"rest_path"`
	AuthPath          *string   `json:"auth_path"`
	SessionDBPath     *string   `json:"session_db_path"`
	SessionSecret     *string   `json:"session_secret"`
	RedirectURL       *string   `json:"redirect_url"`
	RequestTimeout    *Duration `json:"request_timeout"`
	RequestsPerSecond *float64  `json:"requests_per_second"`
	SearchDebounce    *Duration `json:"search_debounce"`
	PageSize          *int      `json:"page_size"`
	LogLevel          *string   `json:"log_level"`
}

// parseJson overlays cfg with values from the JSON file named by -c/-config.
// Without such flag it does nothing.
func parseJson(cfg *Config, args []string) error {
	path := flagx.JsonConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	setString(&cfg.BackendURL, jc.BackendURL)
	setString(&cfg.APIKey, jc.APIKey)
	setString(&cfg.RestPath, jc.RestPath)
	setString(&cfg.AuthPath, jc.AuthPath)
	setString(&cfg.SessionDBPath, jc.SessionDBPath)
	setString(&cfg.SessionSecret, jc.SessionSecret)
	setString(&cfg.RedirectURL, jc.RedirectURL)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SearchDebounce != nil {
		cfg.SearchDebounce = jc.SearchDebounce.Duration
	}
	if jc.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *jc.RequestsPerSecond
	}
	if jc.PageSize != nil {
		cfg.PageSize = *jc.PageSize
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
