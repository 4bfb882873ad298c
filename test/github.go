// Package test provides in-process fakes of the GitHub GraphQL and ZenHub REST APIs.
package test

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Repo struct {
	NodeID     string
	DatabaseID int64
	Owner      string
	Name       string
}

func (r Repo) NameWithOwner() string {
	return r.Owner + "/" + r.Name
}

type ClosedIssue struct {
	Number    int
	UpdatedAt time.Time
	ClosedAt  time.Time
}

// GitHub answers the repository lookup and issue search queries of the tap.
type GitHub struct {
	*httptest.Server

	mu      sync.Mutex
	repos   map[string]Repo
	closed  map[string][]ClosedIssue
	queries []string
	tokens  []string
	// limit caps the matches served per search, like GitHub's 1000 result ceiling.
	limit int
}

func NewGitHub() *GitHub {
	g := &GitHub{
		repos:  map[string]Repo{},
		closed: map[string][]ClosedIssue{},
	}
	g.Server = httptest.NewServer(g)
	return g
}

func (g *GitHub) URL() string {
	return g.Server.URL + "/graphql"
}

func (g *GitHub) AddRepo(repo Repo, closed ...ClosedIssue) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.repos[repo.NameWithOwner()] = repo
	g.closed[repo.NameWithOwner()] = closed
}

// LimitResults makes every search serve at most n matches while still reporting the full count.
func (g *GitHub) LimitResults(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = n
}

// SearchQueries returns the search strings received so far.
func (g *GitHub) SearchQueries() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

func (g *GitHub) Tokens() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.tokens...)
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func (g *GitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tokens = append(g.tokens, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	var req graphqlRequest
	b, _ := ioutil.ReadAll(r.Body)
	if err := json.Unmarshal(b, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Problems parsing JSON"}`))
		return
	}

	var out interface{}
	switch {
	case strings.Contains(req.Query, "repository(owner:"):
		out = g.repository(req)
	case strings.Contains(req.Query, "search("):
		out = g.search(req)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"unexpected query"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (g *GitHub) repository(req graphqlRequest) interface{} {
	owner, _ := req.Variables["owner"].(string)
	name, _ := req.Variables["name"].(string)
	repo, ok := g.repos[owner+"/"+name]
	if !ok {
		return map[string]interface{}{
			"data": map[string]interface{}{"repository": nil},
			"errors": []map[string]interface{}{{
				"type":    "NOT_FOUND",
				"message": "Could not resolve to a Repository with the name '" + owner + "/" + name + "'.",
			}},
		}
	}
	return map[string]interface{}{
		"data": map[string]interface{}{"repository": map[string]interface{}{
			"id":         repo.NodeID,
			"databaseId": repo.DatabaseID,
			"name":       repo.Name,
			"owner":      map[string]interface{}{"login": repo.Owner},
		}},
	}
}

// search understands the repo: and updated:> qualifiers and always returns a single page.
func (g *GitHub) search(req graphqlRequest) interface{} {
	query, _ := req.Variables["queryStr"].(string)
	g.queries = append(g.queries, query)

	var repoName string
	var since *time.Time
	for _, field := range strings.Fields(query) {
		switch {
		case strings.HasPrefix(field, "repo:"):
			repoName = strings.TrimPrefix(field, "repo:")
		case strings.HasPrefix(field, "updated:>"):
			if t, err := time.Parse(time.RFC3339, strings.TrimPrefix(field, "updated:>")); err == nil {
				since = &t
			}
		}
	}

	repo := g.repos[repoName]
	var matched []ClosedIssue
	for _, issue := range g.closed[repoName] {
		if since == nil || issue.UpdatedAt.After(*since) {
			matched = append(matched, issue)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.Before(matched[j].UpdatedAt) })
	served := matched
	if g.limit > 0 && len(served) > g.limit {
		served = served[:g.limit]
	}

	nodes := []map[string]interface{}{}
	for _, issue := range served {
		nodes = append(nodes, map[string]interface{}{
			"number":       issue.Number,
			"updatedAt":    issue.UpdatedAt.UTC().Format(time.RFC3339),
			"lastEditedAt": nil,
			"closedAt":     issue.ClosedAt.UTC().Format(time.RFC3339),
			"repository": map[string]interface{}{
				"id":            repo.NodeID,
				"databaseId":    repo.DatabaseID,
				"nameWithOwner": repo.NameWithOwner(),
			},
		})
	}

	return map[string]interface{}{
		"data": map[string]interface{}{"search": map[string]interface{}{
			"issueCount": len(matched),
			"pageInfo":   map[string]interface{}{"hasNextPage": false, "endCursor": nil},
			"nodes":    nodes,
		}},
	}
}
