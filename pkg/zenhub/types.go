package zenhub

import "time"

// Board is a repository's ZenHub board: its pipelines in display order.
type Board struct {
	Pipelines []Pipeline `json:"pipelines"`
}

// Pipeline represents a zenhub pipeline.
type Pipeline struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Issues []BoardIssue `json:"issues"`
}

// BoardIssue is an issue as it sits in a pipeline.
type BoardIssue struct {
	IssueNumber int       `json:"issue_number"`
	Estimate    *Estimate `json:"estimate,omitempty"`
	Position    int       `json:"position"`
	IsEpic      bool      `json:"is_epic"`
}

// Estimate represents a zenhub estimate. ZenHub allows fractional estimates.
type Estimate struct {
	Value float64 `json:"value"`
}

// PipelineRef is the short pipeline reference embedded in issue data and events.
type PipelineRef struct {
	Name        string `json:"name"`
	PipelineID  string `json:"pipeline_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// IssueData is the ZenHub state of a single issue.
type IssueData struct {
	Estimate *Estimate    `json:"estimate,omitempty"`
	Pipeline *PipelineRef `json:"pipeline,omitempty"`
	IsEpic   bool         `json:"is_epic"`
}

// IssueEvent is one estimate or pipeline transition of an issue.
type IssueEvent struct {
	UserID       int64        `json:"user_id"`
	Type         string       `json:"type"`
	CreatedAt    time.Time    `json:"created_at"`
	FromEstimate *Estimate    `json:"from_estimate,omitempty"`
	ToEstimate   *Estimate    `json:"to_estimate,omitempty"`
	FromPipeline *PipelineRef `json:"from_pipeline,omitempty"`
	ToPipeline   *PipelineRef `json:"to_pipeline,omitempty"`
	WorkspaceID  string       `json:"workspace_id,omitempty"`
}

func (e *Estimate) ValuePtr() *float64 {
	if e == nil {
		return nil
	}
	v := e.Value
	return &v
}

func (p *PipelineRef) NamePtr() *string {
	if p == nil {
		return nil
	}
	n := p.Name
	return &n
}
