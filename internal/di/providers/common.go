// Package providers contains dependency injection providers for the library server.
package providers

import "time"

const (
	// shutdownTimeout bounds the HTTP drain on shutdown.
	shutdownTimeout = 10 * time.Second
)

// Args are the command-line arguments passed to the config loader.
type Args []string
