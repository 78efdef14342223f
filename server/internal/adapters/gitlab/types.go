package gitlab

import (
	"errors"
	"time"
)

// Project is the subset of a GitLab project used here.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
}

// Commit is one repository commit.
type Commit struct {
	ID            string    `json:"id"`
	AuthorName    string    `json:"author_name"`
	Message       string    `json:"message"`
	CommittedDate time.Time `json:"committed_date"`
}

// Pipeline is one CI pipeline.
type Pipeline struct {
	ID        int       `json:"id"`
	Ref       string    `json:"ref"`
	Status    string    `json:"status"`
	SHA       string    `json:"sha"`
	WebURL    string    `json:"web_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Issue is one project issue.
type Issue struct {
	ID        int       `json:"id"`
	IID       int       `json:"iid"`
	Title     string    `json:"title"`
	Labels    []string  `json:"labels"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the embedded author/assignee object.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// MergeRequest is one merge request.
type MergeRequest struct {
	IID          int       `json:"iid"`
	State        string    `json:"state"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	Author       User      `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
}

// Milestone is one project milestone. Dates are calendar dates (YYYY-MM-DD).
type Milestone struct {
	IID         int    `json:"iid"`
	Title       string `json:"title"`
	State       string `json:"state"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	DueDate     string `json:"due_date"`
	Expired     bool   `json:"expired"`
}

// Member is one project member.
type Member struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	State     string `json:"state"`
}

// UserDetail is the subset of a single-user lookup not carried by member
// listings.
type UserDetail struct {
	ID          int    `json:"id"`
	PublicEmail string `json:"public_email"`
}

// UserStatus is a user's self-reported status. Emoji is a GitHub-style alias
// without colons, e.g. "coffee".
type UserStatus struct {
	Emoji        string `json:"emoji"`
	Message      string `json:"message"`
	Availability string `json:"availability"`
}

// Branch is one repository branch.
type Branch struct {
	Name string `json:"name"`
}

// Label is one project label.
type Label struct {
	Name string `json:"name"`
}

func asAPIError(err error) (*apiError, bool) {
	var e *apiError
	ok := errors.As(err, &e)
	return e, ok
}
