package git

import (
	"net/http"

	"github.com/naveego/zenhub-tap/pkg/ratelimit"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const upstreamName = "github"

// Client talks to the GitHub GraphQL API.
type Client struct {
	config Config
	gql    *githubv4.Client
	log    *logrus.Entry
}

// NewClient builds an authenticated GraphQL client. Requests are retried on 429/503 and on
// exhausted primary rate limits, and non-2xx responses surface as typed errors.
func NewClient(config Config, log *logrus.Entry) *Client {
	config = config.withDefaults()
	log = log.WithField("cmp", upstreamName)

	limited := ratelimit.NewTransport(http.DefaultTransport, ratelimit.Options{
		Name:            upstreamName,
		RetryStatuses:   []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
		IsRateLimited:   isRateLimited,
		InitialInterval: config.InitialBackoff,
		AttemptTimeout:  config.Timeout,
		Log:             log,
	})

	var base http.RoundTripper = limited
	if config.Token != "" {
		base = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token}),
			Base:   limited,
		}
	}

	// Timeouts apply per attempt inside the rate limited transport so that backoff
	// and Retry-After waits are not cut short.
	httpClient := &http.Client{
		Transport: &errorTransport{base: base},
	}

	return &Client{
		config: config,
		gql:    githubv4.NewEnterpriseClient(config.URL, httpClient),
		log:    log,
	}
}
