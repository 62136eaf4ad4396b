package github

import (
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"
)

// ErrNotFound means the remote repo, ref or path does not exist. It surfaces
// to the caller: a report pointing at a missing file is structurally broken.
var ErrNotFound = errors.New("not found")

// ErrTooLarge means the file exceeds the contents endpoint size limit.
// It is always handled internally by falling back to the git blob path.
var ErrTooLarge = errors.New("file too large")

// classifyError maps GitHub API error responses onto the two error kinds
// callers branch on. Anything else propagates unchanged.
func classifyError(err error) error {
	var apiErr *gh.ErrorResponse
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return err
	}

	switch apiErr.Response.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	case http.StatusForbidden:
		for _, e := range apiErr.Errors {
			if e.Code == "too_large" {
				return fmt.Errorf("%w: %s", ErrTooLarge, e.Message)
			}
		}
	}

	return err
}
