// Package moderation implements the submission lifecycle: a completed
// form becomes a durable Post that collects independent admin votes
// until it crosses an approval or rejection quorum, at which point it
// is resolved, removed from the store, and the parties are notified.
package moderation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Post is one completed form awaiting moderation. The vote slices hold
// distinct admin ids; an admin appears in at most one of them.
type Post struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Data     map[string]any `json:"data"`
	UserID   int64          `json:"user_id"`
	Username string         `json:"username"`
	FullName string         `json:"full_name"`

	ApprovedBy []int64 `json:"approved_by"`
	RejectedBy []int64 `json:"rejected_by"`
}

// NewPost wraps collected form answers into a pending submission with
// a fresh id.
func NewPost(title string, data map[string]any, userID int64, username, fullName string) *Post {
	return &Post{
		ID:       uuid.NewString(),
		Title:    title,
		Data:     data,
		UserID:   userID,
		Username: username,
		FullName: fullName,
	}
}

// ResultsToData converts a stepper result map into post data.
func ResultsToData(results map[string]string) map[string]any {
	data := make(map[string]any, len(results))
	for k, v := range results {
		data[k] = v
	}
	return data
}

// HasApproval reports whether the admin already approved.
func (p *Post) HasApproval(adminID int64) bool {
	return containsID(p.ApprovedBy, adminID)
}

// HasRejection reports whether the admin already rejected.
func (p *Post) HasRejection(adminID int64) bool {
	return containsID(p.RejectedBy, adminID)
}

// Message compiles the display text: template title, one line per
// answer (list values as a bulleted sub-list), and an attribution line
// naming the submitter by handle or display name.
func (p *Post) Message() string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString("\n\n")
	keys := make([]string, 0, len(p.Data))
	for key := range p.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := p.Data[key]
		switch v := value.(type) {
		case []string:
			fmt.Fprintf(&b, "%s:\n", key)
			for _, item := range v {
				fmt.Fprintf(&b, "  - %s\n", item)
			}
		case []any:
			fmt.Fprintf(&b, "%s:\n", key)
			for _, item := range v {
				fmt.Fprintf(&b, "  - %v\n", item)
			}
		default:
			fmt.Fprintf(&b, "%s: %v\n", key, v)
		}
	}
	if p.Username != "" {
		fmt.Fprintf(&b, "\nAuthor: @%s", p.Username)
	} else {
		fmt.Fprintf(&b, "\nAuthor: %s", p.FullName)
	}
	return b.String()
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	kept := ids[:0]
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}
