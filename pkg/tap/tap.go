// Package tap runs a sync: it resolves the configured repositories, snapshots their
// ZenHub boards, picks up issues closed since the last run, walks the event history of
// every issue it saw, and finally persists the per-repository watermarks.
package tap

import (
	"context"
	"time"

	"github.com/naveego/zenhub-tap/pkg/git"
	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/naveego/zenhub-tap/pkg/state"
	"github.com/naveego/zenhub-tap/pkg/zenhub"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// IssueTracker is the GitHub side of a sync.
type IssueTracker interface {
	ResolveRepository(ctx context.Context, ref issues.RepoRef) (issues.RepositoryIdentity, error)
	SearchIssues(ctx context.Context, query string, fn func(git.SearchIssue) error) (git.SearchResult, error)
}

// Estimator is the ZenHub side of a sync.
type Estimator interface {
	GetBoard(ctx context.Context, repoID int64) (*zenhub.Board, error)
	GetIssueData(ctx context.Context, repoID int64, issueNumber int) (*zenhub.IssueData, error)
	GetIssueEvents(ctx context.Context, repoID int64, issueNumber int) ([]zenhub.IssueEvent, error)
}

// Sink receives the schemas, records and final state of a run.
type Sink interface {
	WriteSchema(stream string, schema interface{}, keyProperties []string) error
	WriteRecord(stream string, record interface{}) error
	WriteState(value interface{}) error
}

type metricLogger interface {
	LogMetric(stream string)
}

type Options struct {
	Repos []issues.RepoRef
	// StartDate bounds the first delta query of a repository with no watermark.
	StartDate *time.Time
	Tracker   IssueTracker
	Estimator Estimator
	Sink      Sink
	State     *state.Manager
	Log       *logrus.Entry
	// Now defaults to time.Now.
	Now func() time.Time
}

// issueRef identifies an issue across both upstreams.
type issueRef struct {
	repoDatabaseID int64
	number         int
}

type collectedIssue struct {
	repo   issues.RepositoryIdentity
	number int
	key    string
}

// Run is the explicit context of a single sync. It is not reusable.
type Run struct {
	ID string

	opts      Options
	log       *logrus.Entry
	machine   *phaseMachine
	started   bool
	startedAt time.Time

	identities []issues.RepositoryIdentity
	collected  []collectedIssue
	seen       map[issueRef]bool
	counts     map[string]int
	repos      map[int64]*RepositorySummary
	summary    Summary
}

func New(opts Options) *Run {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	id := xid.New().String()
	r := &Run{
		ID:      id,
		opts:    opts,
		log:     opts.Log.WithField("run_id", id),
		machine: newSyncMachine(),
		seen:    map[issueRef]bool{},
		counts:  map[string]int{},
		repos:   map[int64]*RepositorySummary{},
	}
	for _, phase := range []Phase{PhaseSnapshottingBoards, PhaseFetchingDelta, PhaseFetchingEvents, PhasePersistingState, PhaseDone, PhaseFailed} {
		r.machine.OnEnter(phase, r.logTransition)
	}
	return r
}

func (r *Run) logTransition(src Phase, event string) {
	log := r.log.WithFields(logrus.Fields{"from": src, "phase": r.machine.Phase()})
	if event == eventFailed {
		log.Warn("Sync failed.")
		return
	}
	log.Debug("Entered phase.")
}

// Phase returns the phase the run is in.
func (r *Run) Phase() Phase {
	return r.machine.Phase()
}

// collect records an issue for event fetching. It reports false if the issue
// was already collected in this run.
func (r *Run) collect(repo issues.RepositoryIdentity, number int) bool {
	ref := issueRef{repoDatabaseID: repo.DatabaseID, number: number}
	if r.seen[ref] {
		return false
	}
	r.seen[ref] = true
	r.collected = append(r.collected, collectedIssue{
		repo:   repo,
		number: number,
		key:    issues.IssueKey(repo.NodeID, number),
	})
	return true
}

func (r *Run) emit(stream string, record interface{}) error {
	if err := r.opts.Sink.WriteRecord(stream, record); err != nil {
		return err
	}
	r.counts[stream]++
	return nil
}

func (r *Run) streamDone(stream string) {
	if m, ok := r.opts.Sink.(metricLogger); ok {
		m.LogMetric(stream)
	}
}

func (r *Run) repoSummary(repo issues.RepositoryIdentity) *RepositorySummary {
	s, ok := r.repos[repo.DatabaseID]
	if !ok {
		s = &RepositorySummary{Repository: repo.String()}
		r.repos[repo.DatabaseID] = s
		r.summary.Repositories = append(r.summary.Repositories, s)
	}
	return s
}
