package test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"

	"github.com/naveego/zenhub-tap/pkg/zenhub"
)

var zenhubPathRE = regexp.MustCompile(`^/p1/repositories/(\d+)/(board|issues/(\d+)(/events)?)$`)

// ZenHub serves boards, issue data and issue events from memory. Anything not
// registered is a 404.
type ZenHub struct {
	*httptest.Server

	mu     sync.Mutex
	boards map[int64]zenhub.Board
	issues map[string]zenhub.IssueData
	events map[string][]zenhub.IssueEvent
	paths  []string
	tokens []string
}

func NewZenHub() *ZenHub {
	z := &ZenHub{
		boards: map[int64]zenhub.Board{},
		issues: map[string]zenhub.IssueData{},
		events: map[string][]zenhub.IssueEvent{},
	}
	z.Server = httptest.NewServer(z)
	return z
}

func issueKey(repoID int64, number int) string {
	return fmt.Sprintf("%d/%d", repoID, number)
}

func (z *ZenHub) SetBoard(repoID int64, board zenhub.Board) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.boards[repoID] = board
}

func (z *ZenHub) SetIssue(repoID int64, number int, data zenhub.IssueData) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.issues[issueKey(repoID, number)] = data
}

func (z *ZenHub) SetEvents(repoID int64, number int, events ...zenhub.IssueEvent) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.events[issueKey(repoID, number)] = events
}

// Paths returns the request paths received so far.
func (z *ZenHub) Paths() []string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return append([]string(nil), z.paths...)
}

func (z *ZenHub) Tokens() []string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return append([]string(nil), z.tokens...)
}

func (z *ZenHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.paths = append(z.paths, r.URL.Path)
	z.tokens = append(z.tokens, r.Header.Get("X-Authentication-Token"))
	w.Header().Set("Content-Type", "application/json")

	m := zenhubPathRE.FindStringSubmatch(r.URL.Path)
	if m == nil || r.Method != http.MethodGet {
		notFound(w)
		return
	}
	repoID, _ := strconv.ParseInt(m[1], 10, 64)

	var out interface{}
	var ok bool
	switch {
	case m[2] == "board":
		out, ok = z.boards[repoID]
	case m[4] != "":
		number, _ := strconv.Atoi(m[3])
		var events []zenhub.IssueEvent
		events, ok = z.events[issueKey(repoID, number)]
		if !ok {
			events, ok = []zenhub.IssueEvent{}, true
		}
		out = events
	default:
		number, _ := strconv.Atoi(m[3])
		out, ok = z.issues[issueKey(repoID, number)]
	}

	if !ok {
		notFound(w)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"message":"Not Found"}`))
}
