package server

import "time"

// Config is the web UI server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// Provider and Model are reported in the startup log and on the page.
	Provider string
	Model    string

	// SessionTTL is how long an idle session keeps its history. Zero keeps
	// sessions until they are ended explicitly.
	SessionTTL time.Duration

	// Debug mounts the runtime profiler under /debug/pprof.
	Debug bool
}
