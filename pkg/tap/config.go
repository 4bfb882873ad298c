package tap

import (
	"time"

	"github.com/naveego/zenhub-tap/pkg/git"
	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/naveego/zenhub-tap/pkg/util/multierr"
	"github.com/naveego/zenhub-tap/pkg/zenhub"
	"github.com/pkg/errors"
)

// Config is the tap configuration file, in the singer key style.
type Config struct {
	GitHubToken             string        `mapstructure:"github_token" yaml:"github_token"`
	ZenHubToken             string        `mapstructure:"zenhub_token" yaml:"zenhub_token"`
	Repos                   []string      `mapstructure:"repos" yaml:"repos"`
	StartDate               string        `mapstructure:"start_date" yaml:"start_date,omitempty"`
	GitHubURL               string        `mapstructure:"github_url" yaml:"github_url,omitempty"`
	ZenHubURL               string        `mapstructure:"zenhub_url" yaml:"zenhub_url,omitempty"`
	MaxPages                int           `mapstructure:"max_pages" yaml:"max_pages,omitempty"`
	ZenHubRequestsPerMinute int           `mapstructure:"zenhub_requests_per_minute" yaml:"zenhub_requests_per_minute,omitempty"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout" yaml:"request_timeout,omitempty"`
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	errs := multierr.New()
	if c.GitHubToken == "" {
		errs.Collect(errors.New("github_token is required"))
	}
	if c.ZenHubToken == "" {
		errs.Collect(errors.New("zenhub_token is required"))
	}
	if len(c.Repos) == 0 {
		errs.Collect(errors.New("repos must list at least one owner/name repository"))
	} else if _, err := issues.ParseRepoRefs(c.Repos); err != nil {
		errs.Collect(errors.Wrap(err, "repos"))
	}
	if _, err := c.StartTime(); err != nil {
		errs.Collect(err)
	}
	if c.MaxPages < 0 {
		errs.Collect(errors.Errorf("max_pages must not be negative, got %d", c.MaxPages))
	}
	return errs.ToError()
}

func (c Config) RepoRefs() ([]issues.RepoRef, error) {
	return issues.ParseRepoRefs(c.Repos)
}

// StartTime parses start_date. It returns nil if start_date is not set.
func (c Config) StartTime() (*time.Time, error) {
	if c.StartDate == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, c.StartDate)
	if err != nil {
		return nil, errors.Wrapf(err, "start_date %q is not an RFC3339 timestamp", c.StartDate)
	}
	t = t.UTC()
	return &t, nil
}

func (c Config) GitConfig() git.Config {
	return git.Config{
		Token:    c.GitHubToken,
		URL:      c.GitHubURL,
		MaxPages: c.MaxPages,
		Timeout:  c.RequestTimeout,
	}
}

func (c Config) ZenHubConfig() zenhub.Config {
	return zenhub.Config{
		ZenhubToken:       c.ZenHubToken,
		URL:               c.ZenHubURL,
		RequestsPerMinute: c.ZenHubRequestsPerMinute,
		Timeout:           c.RequestTimeout,
	}
}
