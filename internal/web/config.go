package web

import (
	"time"

	"github.com/spend-intake/internal/hierarchy"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr string

	// APIKey guards /api routes when set.
	APIKey string

	// Order is the default group order of /api/groups.
	Order hierarchy.Order

	ShutdownTimeout time.Duration
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Order:           hierarchy.OrderSpend,
		ShutdownTimeout: 30 * time.Second,
	}
}
