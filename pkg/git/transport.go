package git

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"

	"github.com/google/go-github/v20/github"
	jsoniter "github.com/json-iterator/go"
	"github.com/naveego/zenhub-tap/pkg/issues"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GraphQL error types GitHub puts in the "type" field of an error entry.
const errorTypeNotFound = "NOT_FOUND"

// errorTypes collects the GraphQL error types of the responses to requests made with
// a context from withErrorTypes. The GraphQL client only keeps error messages.
type errorTypes struct {
	types []string
}

type errorTypesKey struct{}

func withErrorTypes(ctx context.Context) (context.Context, *errorTypes) {
	et := &errorTypes{}
	return context.WithValue(ctx, errorTypesKey{}, et), et
}

func errorTypesFrom(ctx context.Context) *errorTypes {
	et, _ := ctx.Value(errorTypesKey{}).(*errorTypes)
	return et
}

func (e *errorTypes) has(kind string) bool {
	for _, t := range e.types {
		if t == kind {
			return true
		}
	}
	return false
}

// record reads the error entries of a GraphQL response and puts the body back.
func (e *errorTypes) record(resp *http.Response) error {
	b, err := ioutil.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	resp.Body = ioutil.NopCloser(bytes.NewReader(b))

	var payload struct {
		Errors []struct {
			Type string `json:"type"`
		} `json:"errors"`
	}
	if json.Unmarshal(b, &payload) == nil {
		for _, entry := range payload.Errors {
			e.types = append(e.types, entry.Type)
		}
	}
	return nil
}

// isRateLimited catches GitHub's 403 flavours of rate limiting: an exhausted primary
// quota, or a secondary limit which always carries Retry-After.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	return resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != ""
}

// errorTransport turns non-2xx responses into the error taxonomy before the GraphQL
// client sees them, so callers can tell auth failures from everything else.
type errorTransport struct {
	base http.RoundTripper
}

func (t *errorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// CheckResponse consumes the body.
	checkErr := github.CheckResponse(resp)
	if checkErr == nil {
		if et := errorTypesFrom(req.Context()); et != nil {
			if err = et.record(resp); err != nil {
				return nil, err
			}
		}
		return resp, nil
	}
	_ = resp.Body.Close()

	return nil, classify(resp.StatusCode, checkErr)
}

func classify(status int, err error) error {
	message := err.Error()
	switch e := err.(type) {
	case *github.ErrorResponse:
		message = e.Message
	case *github.RateLimitError:
		message = e.Message
	case *github.AbuseRateLimitError:
		message = e.Message
	}
	if status == http.StatusUnauthorized {
		return &issues.AuthError{Upstream: upstreamName, Status: status, Message: message}
	}
	return &issues.UpstreamError{Upstream: upstreamName, Status: status, Message: message, Err: err}
}
