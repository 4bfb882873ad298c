package git

import "time"

const (
	DefaultGraphQLURL = "https://api.github.com/graphql"
	DefaultMaxPages   = 50
	DefaultPageSize   = 100
)

type Config struct {
	Token string `yaml:"-"`
	// URL is the GraphQL endpoint; empty means api.github.com.
	URL string `yaml:"url,omitempty"`
	// MaxPages bounds every paginated query.
	MaxPages int           `yaml:"maxPages,omitempty"`
	PageSize int           `yaml:"pageSize,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	// InitialBackoff overrides the first retry interval; tests shorten it.
	InitialBackoff time.Duration `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultGraphQLURL
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.PageSize <= 0 || c.PageSize > DefaultPageSize {
		c.PageSize = DefaultPageSize
	}
	return c
}
