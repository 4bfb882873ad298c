package tap

import (
	"context"

	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/naveego/zenhub-tap/pkg/util/multierr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// resolveRepositories resolves every configured repository once, in configuration order.
// Repositories that cannot be found are all reported together; any other failure stops
// resolution immediately.
func (r *Run) resolveRepositories(ctx context.Context) error {
	if len(r.opts.Repos) == 0 {
		return errors.New("no repositories configured")
	}

	errs := multierr.New()
	for _, ref := range r.opts.Repos {
		if err := ctx.Err(); err != nil {
			return err
		}

		identity, err := r.opts.Tracker.ResolveRepository(ctx, ref)
		if err != nil {
			var notFound *issues.NotFoundError
			if errors.As(err, &notFound) {
				r.log.WithField("repo", ref.String()).WithError(err).Error("Could not resolve repository.")
				errs.Collect(errors.Wrapf(err, "resolve %s", ref))
				continue
			}
			return errors.Wrapf(err, "resolve %s", ref)
		}

		r.log.WithFields(logrus.Fields{
			"repo":        ref.String(),
			"node_id":     identity.NodeID,
			"database_id": identity.DatabaseID,
		}).Info("Resolved repository.")
		r.identities = append(r.identities, identity)
		s := r.repoSummary(identity)
		s.Ref = ref.String()
	}

	return errs.ToError()
}
