package issues

// RepositoryIdentity holds the identifiers each upstream needs for a repository.
// NodeID is the GitHub GraphQL global id, DatabaseID the numeric id ZenHub is keyed by.
type RepositoryIdentity struct {
	NodeID     string `json:"nodeId" yaml:"nodeId"`
	DatabaseID int64  `json:"databaseId" yaml:"databaseId"`
	Name       string `json:"name" yaml:"name"`
	Owner      string `json:"owner" yaml:"owner"`
}

func (r RepositoryIdentity) Ref() RepoRef {
	return RepoRef{Org: r.Owner, Repo: r.Name}
}

func (r RepositoryIdentity) String() string {
	return r.Ref().String()
}
