package zenhub

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dghubble/sling"
	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/naveego/zenhub-tap/pkg/ratelimit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	upstreamName = "zenhub"
	tokenHeader  = "X-Authentication-Token"
)

// API provides methods for reading boards, issues and issue events from ZenHub.
type API struct {
	client *sling.Sling
	log    *logrus.Entry
}

// New returns a reference to a ZenHub API. Every request waits on a per-minute limiter and
// is retried with exponential backoff while ZenHub answers 403/429/503, 403 being how
// ZenHub reports an exhausted quota.
func New(config Config, log *logrus.Entry) *API {
	log = log.WithField("cmp", upstreamName)

	base := config.URL
	if base == "" {
		base = DefaultURL
	}
	rpm := config.RequestsPerMinute
	if rpm == 0 {
		rpm = DefaultRequestsPerMinute
	}

	httpClient := &http.Client{
		Transport: ratelimit.NewTransport(http.DefaultTransport, ratelimit.Options{
			Name:            upstreamName,
			RetryStatuses:   []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable},
			InitialInterval: config.InitialBackoff,
			AttemptTimeout:  config.Timeout,
			Limiter:         ratelimit.PerMinute(rpm),
			Log:             log,
		}),
	}

	return &API{
		client: sling.New().
			Client(httpClient).
			Base(strings.TrimRight(base, "/")+"/").
			Set(tokenHeader, config.ZenhubToken).
			Set("Accept", "application/json"),
		log: log,
	}
}

// GetBoard returns every pipeline of the repository's board with the issues in it.
func (a *API) GetBoard(ctx context.Context, repoID int64) (*Board, error) {
	board := new(Board)
	path := fmt.Sprintf("p1/repositories/%d/board", repoID)
	err := a.get(ctx, path, fmt.Sprintf("board for repository %d", repoID), board)
	return board, err
}

// GetIssueData returns the estimate, pipeline and epic flag of a single issue.
func (a *API) GetIssueData(ctx context.Context, repoID int64, issueNumber int) (*IssueData, error) {
	data := new(IssueData)
	path := fmt.Sprintf("p1/repositories/%d/issues/%d", repoID, issueNumber)
	err := a.get(ctx, path, fmt.Sprintf("issue %d in repository %d", issueNumber, repoID), data)
	return data, err
}

// GetIssueEvents returns the full estimate and pipeline history of a single issue.
func (a *API) GetIssueEvents(ctx context.Context, repoID int64, issueNumber int) ([]IssueEvent, error) {
	var events []IssueEvent
	path := fmt.Sprintf("p1/repositories/%d/issues/%d/events", repoID, issueNumber)
	err := a.get(ctx, path, fmt.Sprintf("events of issue %d in repository %d", issueNumber, repoID), &events)
	return events, err
}

type apiError struct {
	Message string `json:"message"`
}

func (a *API) get(ctx context.Context, path, resource string, out interface{}) error {
	req, err := a.client.New().Get(path).Request()
	if err != nil {
		return errors.Wrapf(err, "build request for %s", resource)
	}
	req = req.WithContext(ctx)

	a.log.WithField("path", path).Debug("GET")

	failure := new(apiError)
	resp, err := a.client.Do(req, out, failure)
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		message := failure.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return issues.StatusError(upstreamName, resource, resp.StatusCode, message)
	}
	if err != nil {
		var rlErr *ratelimit.Error
		if errors.As(err, &rlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrapf(err, "get %s", resource)
		}
		return &issues.UpstreamError{Upstream: upstreamName, Message: "get " + resource, Err: err}
	}
	return nil
}
