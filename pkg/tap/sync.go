package tap

import (
	"context"
	"time"

	"github.com/naveego/zenhub-tap/pkg/singer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Summary struct {
	RunID                  string               `json:"runId" yaml:"runId"`
	StartedAt              time.Time            `json:"startedAt" yaml:"startedAt"`
	Phase                  Phase                `json:"phase" yaml:"phase"`
	Records                map[string]int       `json:"records" yaml:"records"`
	Repositories           []*RepositorySummary `json:"repositories" yaml:"repositories"`
	PaginationLimitReached bool                 `json:"paginationLimitReached" yaml:"paginationLimitReached"`
}

type RepositorySummary struct {
	// Ref is the repository as configured; Repository is its resolved name.
	Ref           string `json:"ref" yaml:"ref"`
	Repository    string `json:"repository" yaml:"repository"`
	BoardIssues   int    `json:"boardIssues" yaml:"boardIssues"`
	ClosedIssues  int    `json:"closedIssues" yaml:"closedIssues"`
	ClosedEmitted int    `json:"closedEmitted" yaml:"closedEmitted"`
	ClosedSkipped int    `json:"closedSkipped" yaml:"closedSkipped"`
	Pages         int    `json:"pages" yaml:"pages"`

	PaginationLimitReached bool       `json:"paginationLimitReached" yaml:"paginationLimitReached"`
	MaxUpdatedAt           *time.Time `json:"maxUpdatedAt,omitempty" yaml:"maxUpdatedAt,omitempty"`
	Watermark              *time.Time `json:"watermark,omitempty" yaml:"watermark,omitempty"`
	NextWatermark          *time.Time `json:"nextWatermark,omitempty" yaml:"nextWatermark,omitempty"`
}

// WriteSchemas declares both streams to sink.
func WriteSchemas(sink Sink) error {
	if err := sink.WriteSchema(StreamIssues, singer.Schema(&IssueRecord{}), KeyProperties); err != nil {
		return err
	}
	return sink.WriteSchema(StreamIssueEvents, singer.Schema(&IssueEventRecord{}), KeyProperties)
}

// Sync runs every phase in order. Any error fails the run before state is persisted,
// so the previous watermarks stay in effect.
func (r *Run) Sync(ctx context.Context) (Summary, error) {
	if r.started {
		return r.summary, errors.New("a run can only be synced once")
	}
	r.started = true
	r.startedAt = r.opts.Now().UTC()
	r.summary.RunID = r.ID
	r.summary.StartedAt = r.startedAt

	r.log.WithFields(logrus.Fields{
		"repos":      len(r.opts.Repos),
		"started_at": r.startedAt.Format(time.RFC3339),
	}).Info("Starting sync.")

	steps := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{PhaseResolvingRepos, r.resolveRepositories},
		{PhaseSnapshottingBoards, r.snapshotBoardsWithSchemas},
		{PhaseFetchingDelta, r.fetchClosedIssues},
		{PhaseFetchingEvents, r.fetchEvents},
		{PhasePersistingState, r.persistState},
	}

	for _, step := range steps {
		if r.machine.Phase() != step.phase {
			return r.finish(), errors.Errorf("run is in phase %s, expected %s", r.machine.Phase(), step.phase)
		}
		if err := step.run(ctx); err != nil {
			_ = r.machine.Send(eventFailed)
			return r.finish(), errors.Wrapf(err, "sync failed while %s", step.phase)
		}
		if err := r.machine.Send(eventCompleted); err != nil {
			return r.finish(), err
		}
	}

	summary := r.finish()
	r.log.WithFields(logrus.Fields{
		StreamIssues:               summary.Records[StreamIssues],
		StreamIssueEvents:          summary.Records[StreamIssueEvents],
		"pagination_limit_reached": summary.PaginationLimitReached,
	}).Info("Sync complete.")
	return summary, nil
}

func (r *Run) finish() Summary {
	r.summary.Phase = r.machine.Phase()
	r.summary.Records = map[string]int{}
	for stream, n := range r.counts {
		r.summary.Records[stream] = n
	}
	return r.summary
}

func (r *Run) snapshotBoardsWithSchemas(ctx context.Context) error {
	if err := WriteSchemas(r.opts.Sink); err != nil {
		return err
	}
	return r.snapshotBoards(ctx)
}

func (r *Run) persistState(ctx context.Context) error {
	for _, repo := range r.identities {
		summary := r.repoSummary(repo)
		offered := r.nextWatermark(summary)
		if offered.IsZero() {
			r.log.WithField("repo", summary.Ref).Warn("No watermark to save; the next run starts from scratch.")
			continue
		}
		next := r.opts.State.SetWatermark(StreamIssues, BookmarkKey(summary.Ref), offered)
		summary.NextWatermark = &next
		r.log.WithFields(logrus.Fields{
			"repo":      summary.Ref,
			"watermark": next.Format(time.RFC3339),
		}).Debug("Advanced watermark.")
	}

	return errors.Wrap(r.opts.State.Persist(r.opts.Sink), "persist state")
}
