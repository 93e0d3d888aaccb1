package models

import "strings"

// CommitInfo is the commit object of a single revision.
type CommitInfo struct {
	Commit  string `json:"commit"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// TrimmedMessage returns the commit message with blank lines collapsed.
func (c *CommitInfo) TrimmedMessage() string {
	msg := c.Message
	for strings.Contains(msg, "\n\n") {
		msg = strings.ReplaceAll(msg, "\n\n", "\n")
	}
	return strings.TrimSpace(msg)
}

// ChangeDetail is the on-demand detail of one selected change.
type ChangeDetail struct {
	Change        Change `json:"change"`
	CommitMessage string `json:"commit_message"`
	Topic         string `json:"topic,omitempty"`
}
