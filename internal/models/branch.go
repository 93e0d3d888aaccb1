package models

import "strings"

// Branch is a branch of a project on the review server.
type Branch struct {
	Ref      string `json:"ref"`
	Revision string `json:"revision"`
}

// Name returns the branch name without the refs/heads/ prefix.
func (b *Branch) Name() string {
	return strings.TrimPrefix(b.Ref, "refs/heads/")
}
