package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v57/github"

	"github.com/opensafely-core/reports/common/models"
)

// Repo fetches contents of a single GitHub repo
type Repo struct {
	client *Client
	owner  string
	name   string
}

// URL returns the repo's web URL
func (r *Repo) URL() string {
	return fmt.Sprintf("https://github.com/%s/%s", r.owner, r.name)
}

// OwnerAndName returns the "owner/repo" identity used to scope cache clears
func (r *Repo) OwnerAndName() string {
	return fmt.Sprintf("%s/%s", r.owner, r.name)
}

// GetContents fetches the contents of a path at a ref (branch/commit/tag).
//
// If the path is a single file it returns one ContentFile whose LastUpdated
// is resolved from the commit history. If the path is a directory it returns
// a listing of ContentFiles without content.
func (r *Repo) GetContents(ctx context.Context, path, ref string) (*ContentFile, []*ContentFile, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: ref}
	file, dir, _, err := r.client.gh.Repositories.GetContents(ctx, r.owner, r.name, path, opts)
	if err != nil {
		return nil, nil, classifyError(err)
	}

	if dir != nil {
		entries := make([]*ContentFile, 0, len(dir))
		for _, content := range dir {
			entries = append(entries, &ContentFile{
				Name: content.GetName(),
				SHA:  content.GetSHA(),
			})
		}
		return nil, entries, nil
	}

	if file == nil {
		return nil, nil, fmt.Errorf("no contents returned for %s at %s", path, ref)
	}

	lastUpdated, err := r.GetLastUpdated(ctx, path, ref)
	if err != nil {
		return nil, nil, err
	}

	// Keep the raw base64 payload; ContentFile decodes lazily
	var raw string
	if file.Content != nil {
		raw = *file.Content
	}

	return &ContentFile{
		Name:        file.GetName(),
		SHA:         file.GetSHA(),
		LastUpdated: lastUpdated,
		content:     raw,
	}, nil, nil
}

// GetGitBlob fetches a git blob by sha, bypassing path-based resolution.
// This is the fallback when the contents endpoint rejects a file as too
// large. The caller supplies lastUpdated since the blob endpoint carries no
// commit information.
func (r *Repo) GetGitBlob(ctx context.Context, sha string, lastUpdated time.Time) (*ContentFile, error) {
	blob, _, err := r.client.gh.Git.GetBlob(ctx, r.owner, r.name, sha)
	if err != nil {
		return nil, classifyError(err)
	}

	return &ContentFile{
		SHA:         blob.GetSHA(),
		LastUpdated: lastUpdated,
		content:     blob.GetContent(),
	}, nil
}

// GetLastUpdated returns the committer date of the most recent commit
// touching path on ref, at day precision. Only the single latest commit is
// requested.
func (r *Repo) GetLastUpdated(ctx context.Context, path, ref string) (time.Time, error) {
	opts := &gh.CommitsListOptions{
		SHA:         ref,
		Path:        path,
		ListOptions: gh.ListOptions{PerPage: 1},
	}
	commits, _, err := r.client.gh.Repositories.ListCommits(ctx, r.owner, r.name, opts)
	if err != nil {
		return time.Time{}, classifyError(err)
	}
	if len(commits) == 0 {
		return time.Time{}, fmt.Errorf("%w: no commits for %s at %s", ErrNotFound, path, ref)
	}

	date := commits[0].GetCommit().GetCommitter().GetDate()
	return models.DateOnly(date.Time), nil
}

// ClearCache removes all cached API responses for this repo
func (r *Repo) ClearCache(ctx context.Context) (int, error) {
	return r.client.ClearCache(ctx, r.OwnerAndName())
}
