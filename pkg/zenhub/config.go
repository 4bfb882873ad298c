package zenhub

import "time"

const (
	DefaultURL = "https://api.zenhub.io/"
	// DefaultRequestsPerMinute is ZenHub's documented API limit.
	DefaultRequestsPerMinute = 100
)

type Config struct {
	ZenhubToken string `yaml:"-"`
	// URL defaults to DefaultURL.
	URL string `yaml:"url,omitempty"`
	// RequestsPerMinute defaults to DefaultRequestsPerMinute; negative disables pacing.
	RequestsPerMinute int           `yaml:"requestsPerMinute,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	// InitialBackoff overrides the first retry interval; tests shorten it.
	InitialBackoff time.Duration `yaml:"-"`
}
