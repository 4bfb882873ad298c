package tap

import (
	"context"

	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// snapshotBoards emits an issue record for every issue currently on each repository's board.
func (r *Run) snapshotBoards(ctx context.Context) error {
	for _, repo := range r.identities {
		if err := r.snapshotBoard(ctx, repo); err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) snapshotBoard(ctx context.Context, repo issues.RepositoryIdentity) error {
	log := r.log.WithField("repo", repo.String())
	summary := r.repoSummary(repo)

	board, err := r.opts.Estimator.GetBoard(ctx, repo.DatabaseID)
	if err != nil {
		return errors.Wrapf(err, "fetch board of %s", repo)
	}

	for _, pipeline := range board.Pipelines {
		for _, issue := range pipeline.Issues {
			if !r.collect(repo, issue.IssueNumber) {
				log.WithField("issue", issue.IssueNumber).Warn("Issue appears on the board more than once, skipping.")
				continue
			}

			name := pipeline.Name
			record := newIssueRecord(repo, issue.IssueNumber)
			record.EstimateValue = issue.Estimate.ValuePtr()
			record.PipelineName = &name
			record.IsEpic = issue.IsEpic

			if err = r.emit(StreamIssues, record); err != nil {
				return err
			}
			summary.BoardIssues++
		}
	}

	log.WithFields(logrus.Fields{
		"pipelines": len(board.Pipelines),
		"issues":    summary.BoardIssues,
	}).Info("Snapshotted board.")
	return nil
}
