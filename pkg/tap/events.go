package tap

import (
	"context"

	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/pkg/errors"
)

// fetchEvents walks the event history of every collected issue once, in collection order.
func (r *Run) fetchEvents(ctx context.Context) error {
	for _, issue := range r.collected {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.fetchIssueEvents(ctx, issue); err != nil {
			return err
		}
	}
	r.log.WithField("issues", len(r.collected)).Info("Fetched issue events.")
	r.streamDone(StreamIssueEvents)
	return nil
}

func (r *Run) fetchIssueEvents(ctx context.Context, issue collectedIssue) error {
	events, err := r.opts.Estimator.GetIssueEvents(ctx, issue.repo.DatabaseID, issue.number)
	if err != nil {
		return errors.Wrapf(err, "fetch events of %s#%d", issue.repo, issue.number)
	}

	keys := issues.NewEventKeyer(issue.key)
	for _, event := range events {
		record := IssueEventRecord{
			ID:                   keys.Next(event.CreatedAt),
			RepositoryName:       issue.repo.Name,
			RepositoryOwner:      issue.repo.Owner,
			RepositoryID:         issue.repo.NodeID,
			RepositoryDatabaseID: issue.repo.DatabaseID,
			IssueNumber:          issue.number,
			EventType:            event.Type,
			FromEstimateValue:    event.FromEstimate.ValuePtr(),
			ToEstimateValue:      event.ToEstimate.ValuePtr(),
			FromPipelineName:     event.FromPipeline.NamePtr(),
			ToPipelineName:       event.ToPipeline.NamePtr(),
			UserID:               event.UserID,
			CreatedAt:            event.CreatedAt.UTC(),
		}
		if err = r.emit(StreamIssueEvents, record); err != nil {
			return err
		}
	}
	return nil
}
