package git

import (
	"context"

	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/naveego/zenhub-tap/pkg/ratelimit"
	"github.com/pkg/errors"
	"github.com/shurcooL/githubv4"
)

type repositoryQuery struct {
	Repository *struct {
		ID         githubv4.ID
		DatabaseID githubv4.Int
		Name       githubv4.String
		Owner      struct {
			Login githubv4.String
		}
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// ResolveRepository looks up the node id and database id of a repository with a single query.
// Nothing is cached; callers resolve each repository once per run.
func (c *Client) ResolveRepository(ctx context.Context, ref issues.RepoRef) (issues.RepositoryIdentity, error) {
	var q repositoryQuery
	vars := map[string]interface{}{
		"owner": githubv4.String(ref.Org),
		"name":  githubv4.String(ref.Repo),
	}

	c.log.WithField("repo", ref.String()).Debug("Resolving repository.")

	ctx, errTypes := withErrorTypes(ctx)
	err := c.gql.Query(ctx, &q, vars)
	switch {
	case q.Repository == nil && errTypes.has(errorTypeNotFound):
		// GitHub answers 200 with a null repository and a NOT_FOUND error entry.
		nf := &issues.NotFoundError{Upstream: upstreamName, Resource: "repository " + ref.String()}
		if err != nil {
			nf.Message = err.Error()
		}
		return issues.RepositoryIdentity{}, nf
	case err != nil && isTransportError(err):
		return issues.RepositoryIdentity{}, errors.Wrapf(err, "resolve repository %s", ref)
	case err != nil:
		return issues.RepositoryIdentity{}, &issues.UpstreamError{Upstream: upstreamName, Message: "resolve repository " + ref.String(), Err: err}
	case q.Repository == nil:
		return issues.RepositoryIdentity{}, &issues.UpstreamError{
			Upstream: upstreamName,
			Message:  "repository " + ref.String() + " missing from the response",
		}
	}

	id, ok := q.Repository.ID.(string)
	if !ok || id == "" || q.Repository.DatabaseID == 0 {
		return issues.RepositoryIdentity{}, &issues.UpstreamError{
			Upstream: upstreamName,
			Message:  "repository " + ref.String() + " returned without identifiers",
		}
	}

	identity := issues.RepositoryIdentity{
		NodeID:     id,
		DatabaseID: int64(q.Repository.DatabaseID),
		Name:       string(q.Repository.Name),
		Owner:      string(q.Repository.Owner.Login),
	}
	if identity.Name == "" {
		identity.Name = ref.Repo
	}
	if identity.Owner == "" {
		identity.Owner = ref.Org
	}
	return identity, nil
}

// isTransportError reports whether err is already classified: a taxonomy error from the
// HTTP layer, exhausted retries or a cancelled context. Anything else, a refused connection
// included, still needs wrapping as an UpstreamError.
func isTransportError(err error) bool {
	var authErr *issues.AuthError
	var upstreamErr *issues.UpstreamError
	var rlErr *ratelimit.Error
	return errors.As(err, &authErr) || errors.As(err, &upstreamErr) || errors.As(err, &rlErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
