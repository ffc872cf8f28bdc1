// Package repository validates scan targets and looks up repository metadata.
package repository

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

const githubHost = "github.com"

// GitHub owner and repository name character sets.
var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// Ref identifies a GitHub repository.
type Ref struct {
	Owner string
	Name  string
}

// URL returns the canonical https URL of the repository.
func (r Ref) URL() string {
	return fmt.Sprintf("https://%s/%s/%s", githubHost, r.Owner, r.Name)
}

// CloneURL returns the URL used to clone the repository.
func (r Ref) CloneURL() string {
	return r.URL() + ".git"
}

func (r Ref) String() string {
	return r.Owner + "/" + r.Name
}

// Parse validates raw as an https GitHub repository URL of the form
// https://github.com/<owner>/<repo>, optionally ending in ".git" or "/".
// Every failure wraps schemas.ErrMalformedInput.
func Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("%w: empty url", schemas.ErrMalformedInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", schemas.ErrMalformedInput, err)
	}
	if u.Scheme != "https" {
		return Ref{}, fmt.Errorf("%w: scheme must be https", schemas.ErrMalformedInput)
	}
	if !strings.EqualFold(u.Host, githubHost) || u.User != nil {
		return Ref{}, fmt.Errorf("%w: host must be %s", schemas.ErrMalformedInput, githubHost)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Ref{}, fmt.Errorf("%w: query and fragment are not allowed", schemas.ErrMalformedInput)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return Ref{}, fmt.Errorf("%w: expected https://github.com/<owner>/<repo>", schemas.ErrMalformedInput)
	}
	owner, name := parts[0], strings.TrimSuffix(parts[1], ".git")
	if !ownerPattern.MatchString(owner) {
		return Ref{}, fmt.Errorf("%w: invalid owner %q", schemas.ErrMalformedInput, owner)
	}
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return Ref{}, fmt.Errorf("%w: invalid repository name %q", schemas.ErrMalformedInput, name)
	}
	return Ref{Owner: owner, Name: name}, nil
}

// Validate reports whether raw is an acceptable scan target.
func Validate(raw string) error {
	_, err := Parse(raw)
	return err
}
