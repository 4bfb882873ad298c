package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/pkg/errors"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
)

// SearchIssue is the GitHub side of an issue returned by a search.
type SearchIssue struct {
	Number       int
	UpdatedAt    time.Time
	LastEditedAt *time.Time
	ClosedAt     *time.Time
	Repository   SearchRepository
}

type SearchRepository struct {
	ID            string
	DatabaseID    int64
	NameWithOwner string
}

// SearchResult describes how a paginated search ended. Truncated means the data is
// incomplete for this run but nothing failed: either the page ceiling was hit while
// GitHub still reported more pages, or GitHub stopped serving results (it caps every
// search at 1000) before reaching the total it reported.
type SearchResult struct {
	Pages  int
	Issues int
	// Total is the match count GitHub reported on the last page.
	Total     int
	Truncated bool
}

type searchIssueNode struct {
	Number       githubv4.Int
	UpdatedAt    githubv4.DateTime
	LastEditedAt *githubv4.DateTime
	ClosedAt     *githubv4.DateTime
	Repository   struct {
		ID            githubv4.ID
		DatabaseID    githubv4.Int
		NameWithOwner githubv4.String
	}
}

type searchQuery struct {
	Search struct {
		IssueCount githubv4.Int
		PageInfo   struct {
			HasNextPage githubv4.Boolean
			EndCursor   *githubv4.String
		}
		Nodes []struct {
			Issue searchIssueNode `graphql:"... on Issue"`
		}
	} `graphql:"search(query: $queryStr, first: $first, after: $after, type: ISSUE)"`
}

// ClosedIssuesQuery builds the search string for issues in ref closed and updated after since.
// A nil since applies no updated filter at all.
func ClosedIssuesQuery(ref issues.RepoRef, since *time.Time) string {
	parts := []string{
		"repo:" + ref.String(),
		"is:issue",
		"is:closed",
		"sort:updated-asc",
	}
	if since != nil {
		parts = append(parts, "updated:>"+since.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, " ")
}

// SearchIssues pages through an issue search, calling fn for every issue in order.
// It stops when GitHub reports no further page or after MaxPages pages.
func (c *Client) SearchIssues(ctx context.Context, query string, fn func(SearchIssue) error) (SearchResult, error) {
	var result SearchResult
	var after *githubv4.String
	// nodes counts everything served, pull requests included, to compare with the total.
	var nodes int
	log := c.log.WithField("query", query)

	for result.Pages < c.config.MaxPages {
		var q searchQuery
		vars := map[string]interface{}{
			"queryStr": githubv4.String(query),
			"first":    githubv4.Int(c.config.PageSize),
			"after":    after,
		}

		if err := c.gql.Query(ctx, &q, vars); err != nil {
			if isTransportError(err) {
				return result, errors.Wrapf(err, "search page %d", result.Pages+1)
			}
			return result, &issues.UpstreamError{Upstream: upstreamName, Message: fmt.Sprintf("search page %d", result.Pages+1), Err: err}
		}
		result.Pages++
		result.Total = int(q.Search.IssueCount)
		nodes += len(q.Search.Nodes)

		for _, node := range q.Search.Nodes {
			issue := node.Issue.toSearchIssue()
			if issue.Number == 0 {
				// not an issue (search type ISSUE also matches pull requests)
				continue
			}
			result.Issues++
			if err := fn(issue); err != nil {
				return result, err
			}
		}

		page := q.Search.PageInfo
		if !bool(page.HasNextPage) || page.EndCursor == nil || *page.EndCursor == "" {
			if nodes < result.Total {
				result.Truncated = true
				log.WithFields(logrus.Fields{
					"pages":                    result.Pages,
					"issues":                   result.Issues,
					"total":                    result.Total,
					"pagination_limit_reached": true,
				}).Warn("Search ended before serving every match; more results remain.")
				return result, nil
			}
			log.WithFields(logrus.Fields{"pages": result.Pages, "issues": result.Issues}).Debug("Search complete.")
			return result, nil
		}
		after = page.EndCursor
	}

	result.Truncated = true
	log.WithFields(logrus.Fields{
		"pages":                    result.Pages,
		"issues":                   result.Issues,
		"pagination_limit_reached": true,
	}).Warn("Search stopped at the page limit; more results remain.")
	return result, nil
}

func (n searchIssueNode) toSearchIssue() SearchIssue {
	out := SearchIssue{
		Number:    int(n.Number),
		UpdatedAt: n.UpdatedAt.Time,
		Repository: SearchRepository{
			DatabaseID:    int64(n.Repository.DatabaseID),
			NameWithOwner: string(n.Repository.NameWithOwner),
		},
	}
	if id, ok := n.Repository.ID.(string); ok {
		out.Repository.ID = id
	}
	if n.LastEditedAt != nil {
		t := n.LastEditedAt.Time
		out.LastEditedAt = &t
	}
	if n.ClosedAt != nil {
		t := n.ClosedAt.Time
		out.ClosedAt = &t
	}
	return out
}
