package cmd

import (
	"time"

	"github.com/naveego/zenhub-tap/pkg/git"
	"github.com/naveego/zenhub-tap/pkg/tap"
	"github.com/naveego/zenhub-tap/pkg/zenhub"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// loadTapConfig reads the file named by --config. Tokens may come from
// GITHUB_TOKEN and ZENHUB_TOKEN instead of the file.
func loadTapConfig() (tap.Config, error) {
	var config tap.Config

	v := viper.New()
	v.SetDefault("max_pages", git.DefaultMaxPages)
	v.SetDefault("zenhub_requests_per_minute", zenhub.DefaultRequestsPerMinute)
	v.SetDefault("request_timeout", 30*time.Second)
	v.BindEnv("github_token", "GITHUB_TOKEN")
	v.BindEnv("zenhub_token", "ZENHUB_TOKEN")

	path := viper.GetString(ArgGlobalConfig)
	if path == "" {
		return config, errors.Errorf("--%s is required", ArgGlobalConfig)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return config, errors.Wrapf(err, "read config file %q", path)
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, errors.Wrapf(err, "parse config file %q", path)
	}

	return config, errors.Wrap(config.Validate(), "invalid config")
}
