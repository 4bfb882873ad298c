package tap

import (
	"context"
	"time"

	"github.com/naveego/zenhub-tap/pkg/git"
	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BookmarkKey is the key of a repository's watermark in the issues bookmarks.
func BookmarkKey(ref string) string {
	return ref + ".last_updated"
}

// startingWatermark is the lower bound of a repository's delta query: its bookmark,
// else the configured start date, else nil for a full backfill.
func (r *Run) startingWatermark(ref string) (*time.Time, error) {
	w, err := r.opts.State.GetWatermark(StreamIssues, BookmarkKey(ref))
	if err != nil || w != nil {
		return w, err
	}
	return r.opts.StartDate, nil
}

// fetchClosedIssues emits issues closed since each repository's watermark, merged with
// their ZenHub data. Issues already emitted by the board snapshot are skipped.
func (r *Run) fetchClosedIssues(ctx context.Context) error {
	for _, repo := range r.identities {
		if err := r.fetchClosedSince(ctx, repo); err != nil {
			return err
		}
	}
	r.streamDone(StreamIssues)
	return nil
}

func (r *Run) fetchClosedSince(ctx context.Context, repo issues.RepositoryIdentity) error {
	summary := r.repoSummary(repo)
	log := r.log.WithField("repo", repo.String())

	watermark, err := r.startingWatermark(summary.Ref)
	if err != nil {
		return err
	}
	summary.Watermark = watermark

	query := git.ClosedIssuesQuery(repo.Ref(), watermark)
	log.WithField("query", query).Debug("Searching closed issues.")

	result, err := r.opts.Tracker.SearchIssues(ctx, query, func(found git.SearchIssue) error {
		summary.ClosedIssues++
		if found.Repository.DatabaseID != 0 && found.Repository.DatabaseID != repo.DatabaseID {
			log.WithFields(logrus.Fields{
				"issue":      found.Number,
				"found_repo": found.Repository.NameWithOwner,
			}).Warn("Search returned an issue from another repository, skipping.")
			summary.ClosedSkipped++
			return nil
		}

		if summary.MaxUpdatedAt == nil || found.UpdatedAt.After(*summary.MaxUpdatedAt) {
			t := found.UpdatedAt
			summary.MaxUpdatedAt = &t
		}
		if !r.collect(repo, found.Number) {
			summary.ClosedSkipped++
			return nil
		}

		data, err := r.opts.Estimator.GetIssueData(ctx, repo.DatabaseID, found.Number)
		if err != nil {
			return errors.Wrapf(err, "fetch zenhub data of %s#%d", repo, found.Number)
		}

		record := newIssueRecord(repo, found.Number)
		record.EstimateValue = data.Estimate.ValuePtr()
		record.PipelineName = data.Pipeline.NamePtr()
		record.IsEpic = data.IsEpic

		if err = r.emit(StreamIssues, record); err != nil {
			return err
		}
		summary.ClosedEmitted++
		return nil
	})
	summary.Pages = result.Pages
	if err != nil {
		return errors.Wrapf(err, "search closed issues of %s", repo)
	}

	if result.Truncated {
		summary.PaginationLimitReached = true
		r.summary.PaginationLimitReached = true
		log.WithFields(logrus.Fields{
			"pages":                    result.Pages,
			"pagination_limit_reached": true,
		}).Warn("Closed issue backfill is incomplete; the next run will resume it.")
	}

	log.WithFields(logrus.Fields{
		"closed":  summary.ClosedIssues,
		"emitted": summary.ClosedEmitted,
		"skipped": summary.ClosedSkipped,
		"pages":   summary.Pages,
	}).Info("Fetched closed issues.")
	return nil
}

// nextWatermark is the watermark a repository gets when the run succeeds: the run start,
// or just under the latest issue seen when the search was incomplete. An incomplete search
// that saw none of the repository's issues leaves the watermark where it was.
func (r *Run) nextWatermark(summary *RepositorySummary) time.Time {
	if !summary.PaginationLimitReached {
		return r.startedAt
	}
	if summary.MaxUpdatedAt != nil {
		return summary.MaxUpdatedAt.Add(-time.Second)
	}
	if summary.Watermark != nil {
		return *summary.Watermark
	}
	return time.Time{}
}
