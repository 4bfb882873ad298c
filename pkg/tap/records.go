package tap

import (
	"time"

	"github.com/naveego/zenhub-tap/pkg/issues"
	"github.com/pkg/errors"
)

const (
	StreamIssues      = "issues"
	StreamIssueEvents = "issue_events"
)

// KeyProperties is the primary key of both streams.
var KeyProperties = []string{"id"}

// IssueRecord is a row of the issues stream.
type IssueRecord struct {
	ID                   string   `json:"id" jsonschema:"description=Repository node id and issue number"`
	RepositoryName       string   `json:"repository_name"`
	RepositoryOwner      string   `json:"repository_owner"`
	RepositoryID         string   `json:"repository_id"`
	RepositoryDatabaseID int64    `json:"repository_database_id"`
	IssueNumber          int      `json:"issue_number"`
	EstimateValue        *float64 `json:"estimate_value" jsonschema:"oneof_type=number;null"`
	PipelineName         *string  `json:"pipeline_name" jsonschema:"oneof_type=string;null"`
	IsEpic               bool     `json:"is_epic"`
}

// IssueEventRecord is a row of the issue_events stream.
type IssueEventRecord struct {
	ID                   string    `json:"id" jsonschema:"description=Issue id and event timestamp"`
	RepositoryName       string    `json:"repository_name"`
	RepositoryOwner      string    `json:"repository_owner"`
	RepositoryID         string    `json:"repository_id"`
	RepositoryDatabaseID int64     `json:"repository_database_id"`
	IssueNumber          int       `json:"issue_number"`
	EventType            string    `json:"event_type"`
	FromEstimateValue    *float64  `json:"from_estimate_value" jsonschema:"oneof_type=number;null"`
	ToEstimateValue      *float64  `json:"to_estimate_value" jsonschema:"oneof_type=number;null"`
	FromPipelineName     *string   `json:"from_pipeline_name" jsonschema:"oneof_type=string;null"`
	ToPipelineName       *string   `json:"to_pipeline_name" jsonschema:"oneof_type=string;null"`
	UserID               int64     `json:"user_id"`
	CreatedAt            time.Time `json:"created_at"`
}

func newIssueRecord(repo issues.RepositoryIdentity, number int) IssueRecord {
	return IssueRecord{
		ID:                   issues.IssueKey(repo.NodeID, number),
		RepositoryName:       repo.Name,
		RepositoryOwner:      repo.Owner,
		RepositoryID:         repo.NodeID,
		RepositoryDatabaseID: repo.DatabaseID,
		IssueNumber:          number,
	}
}

func (r IssueRecord) Validate() error {
	return validateIssueFields(r.ID, r.RepositoryID, r.RepositoryDatabaseID, r.IssueNumber)
}

func (r IssueEventRecord) Validate() error {
	if err := validateIssueFields(r.ID, r.RepositoryID, r.RepositoryDatabaseID, r.IssueNumber); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		return errors.Errorf("event %s has no created_at", r.ID)
	}
	return nil
}

func validateIssueFields(id, repoID string, repoDatabaseID int64, number int) error {
	switch {
	case id == "":
		return errors.New("id is required")
	case repoID == "":
		return errors.Errorf("%s: repository_id is required", id)
	case repoDatabaseID <= 0:
		return errors.Errorf("%s: repository_database_id must be positive", id)
	case number <= 0:
		return errors.Errorf("%s: issue_number must be positive", id)
	}
	return nil
}
