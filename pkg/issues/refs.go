package issues

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var repoRefRE = regexp.MustCompile(`^([A-Za-z0-9\-._]+)/([A-Za-z0-9\-._]+)$`)

// RepoRef is an owner/name reference to a GitHub repository, as supplied by configuration.
type RepoRef struct {
	Org  string
	Repo string
}

func (r RepoRef) String() string {
	return fmt.Sprintf("%s/%s", r.Org, r.Repo)
}

func (r RepoRef) OrgAndRepo() (string, string) {
	return r.Org, r.Repo
}

func (r RepoRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RepoRef) UnmarshalText(text []byte) error {
	out, err := ParseRepoRef(string(text))
	if err != nil {
		return err
	}
	*r = out
	return nil
}

func ParseRepoRef(raw string) (RepoRef, error) {
	parts := repoRefRE.FindStringSubmatch(strings.TrimSpace(raw))
	if parts == nil {
		return RepoRef{}, errors.Errorf("expected owner/name, got %q", raw)
	}
	return RepoRef{
		Org:  parts[1],
		Repo: parts[2],
	}, nil
}

// ParseRepoRefs parses every raw reference, rejecting duplicates.
func ParseRepoRefs(raw []string) ([]RepoRef, error) {
	seen := map[string]bool{}
	var out []RepoRef
	for _, r := range raw {
		ref, err := ParseRepoRef(r)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(ref.String())
		if seen[key] {
			return nil, errors.Errorf("repository %q is configured more than once", ref)
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out, nil
}
