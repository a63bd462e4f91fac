// Package config loads runtime configuration for the HealthKeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment variables prefixed with HK_, optionally read from a dotenv
//     file (-env path, or ./.env when present). Real environment wins over
//     the file.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-u string    backend base URL
//	-k string    public API key sent as the apikey header
//	-d string    path of the local SQLite file holding the session
//	-t duration  per-request timeout
//	-q float     outbound requests per second (0 disables throttling)
//	-s duration  search debounce interval
//	-p int       default page size
//	-l string    log level (debug, info, warn, error)
//
// # JSON schema
//
// Durations can be strings like "500ms" or integer nanoseconds:
//
//	{
//	  "backend_url": "https://project.example.co",
//	  "api_key": "public-anon-key",
//	  "session_db_path": "session.db",
//	  "request_timeout": "15s",
//	  "search_debounce": "500ms",
//	  "page_size": 10
//	}
package config
