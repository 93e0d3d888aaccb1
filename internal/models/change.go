// Package models holds the records that flow through the timeline: review
// changes, build artifacts and the filter state that scopes a session.
package models

import "time"

// Account is the owner of a change as returned with detailed accounts.
type Account struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// DisplayName returns the most readable identifier available for the account.
func (a Account) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Username != "":
		return a.Username
	default:
		return a.Email
	}
}

// Change is one entry of the timeline. Review changes carry a non-empty ID;
// synthetic build entries have an empty ID and a non-nil Build.
type Change struct {
	ID            string    `json:"id"`
	ChangeID      string    `json:"change_id,omitempty"`
	Number        int       `json:"number,omitempty"`
	Project       string    `json:"project,omitempty"`
	Branch        string    `json:"branch,omitempty"`
	Subject       string    `json:"subject"`
	Status        string    `json:"status,omitempty"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
	Owner         Account   `json:"owner"`
	RevisionID    string    `json:"revision_id,omitempty"`
	CommitMessage string    `json:"commit_message,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	Build         *Build    `json:"build,omitempty"`
}

// NewBuildChange turns a build artifact into a synthetic timeline entry.
func NewBuildChange(b Build) Change {
	at := b.BuildTime()
	return Change{
		Subject: b.Filename,
		Created: at,
		Updated: at,
		Build:   &b,
	}
}

// IsBuild reports whether the entry is a synthetic build entry.
func (c *Change) IsBuild() bool {
	return c.ID == ""
}

// ShortID returns a shortened Change-Id (first 9 characters)
func (c *Change) ShortID() string {
	if len(c.ChangeID) > 9 {
		return c.ChangeID[:9]
	}
	return c.ChangeID
}
