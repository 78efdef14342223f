// Package gitlab serves the "gitlab" scope: repository, CI and planning data
// read from the GitLab REST API.
package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kyokomi/emoji/v2"

	"github.com/visioncontrol/visioncontrol/pkg/types"
	"github.com/visioncontrol/visioncontrol/server/internal/adapters/payload"
	"github.com/visioncontrol/visioncontrol/server/internal/config"
	"github.com/visioncontrol/visioncontrol/server/internal/datasource"
)

// Scope is the registry scope of this adapter.
const Scope = "gitlab"

const (
	dateLayout    = "2006-01-02"
	defaultBranch = "main"
)

// Adapter answers gitlab metrics and variables.
type Adapter struct {
	client         *Client
	defaultProject string
	projectIDs     []int
}

// New builds an Adapter for the configured GitLab instance.
func New(cfg config.GitLabConfig) *Adapter {
	return &Adapter{
		client:         NewClient(cfg),
		defaultProject: strconv.Itoa(cfg.DefaultProject),
		projectIDs:     cfg.ProjectIDs,
	}
}

// Register adds the adapter's metrics and variables to r.
func (a *Adapter) Register(r *datasource.Registry) {
	r.AddMetrics(Scope, map[string]datasource.MetricFunc{
		"commits":        a.Commits,
		"pipelines":      a.Pipelines,
		"issues":         a.Issues,
		"merge_requests": a.MergeRequests,
		"milestones":     a.Milestones,
		"users":          a.Users,
	})
	r.AddVariables(Scope, map[string]datasource.VariableFunc{
		"projects": a.Projects,
		"branches": a.Branches,
		"labels":   a.Labels,
	})
}

func (a *Adapter) project(p payload.Reader) (string, error) {
	return p.ID("project", a.defaultProject)
}

// projectErr turns a 404 on a project scoped endpoint into ResourceNotFound.
func projectErr(project string, err error) error {
	if isNotFound(err) {
		return &datasource.ResourceNotFoundError{Kind: "project", ID: project}
	}
	return fmt.Errorf("gitlab: project %s: %w", project, err)
}

func intervalQuery(after, before string, iv types.Interval) url.Values {
	q := url.Values{}
	q.Set(after, iv.Start.UTC().Format(time.RFC3339))
	q.Set(before, iv.End.UTC().Format(time.RFC3339))
	return q
}

// Commits lists the commits of a branch within the interval.
// Payload: {"project": id, "branch": name, "timeseries": bool}.
func (a *Adapter) Commits(ctx context.Context, data map[string]any, iv types.Interval) (types.Result, error) {
	p := payload.New(datasource.Identifier(Scope, "commits"), data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	branch, err := p.String("branch", "")
	if err != nil {
		return nil, err
	}
	asSeries, err := p.Bool("timeseries", false)
	if err != nil {
		return nil, err
	}

	q := intervalQuery("since", "until", iv)
	if branch != "" {
		q.Set("ref_name", branch)
	}
	commits, err := getAll[Commit](ctx, a.client, "/projects/{project}/repository/commits",
		map[string]string{"project": project}, q)
	if err != nil {
		return nil, projectErr(project, err)
	}

	if asSeries {
		ts := &types.TimeSeries{Points: make([]types.Point, 0, len(commits))}
		for _, c := range commits {
			ts.Points = append(ts.Points, types.At(1, c.CommittedDate))
		}
		return ts, nil
	}

	tbl := types.NewTable(
		types.Column{Name: "Time", Type: types.ColumnTime},
		types.Column{Name: "Author", Type: types.ColumnString},
		types.Column{Name: "Message", Type: types.ColumnString},
	)
	for _, c := range commits {
		tbl.Append(types.UnixMillis(c.CommittedDate), c.AuthorName, strings.TrimSpace(c.Message))
	}
	return tbl, nil
}

// Pipelines lists the pipelines updated within the interval. The trigger is
// the author of the pipeline's commit.
// Payload: {"project": id, "branch": name}.
func (a *Adapter) Pipelines(ctx context.Context, data map[string]any, iv types.Interval) (types.Result, error) {
	p := payload.New(datasource.Identifier(Scope, "pipelines"), data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	branch, err := p.String("branch", "")
	if err != nil {
		return nil, err
	}

	q := intervalQuery("updated_after", "updated_before", iv)
	if branch != "" {
		q.Set("ref", branch)
	}
	params := map[string]string{"project": project}
	pipelines, err := getAll[Pipeline](ctx, a.client, "/projects/{project}/pipelines", params, q)
	if err != nil {
		return nil, projectErr(project, err)
	}

	authors := make(map[string]string)
	tbl := types.NewTable(
		types.Column{Name: "Time", Type: types.ColumnTime},
		types.Column{Name: "Ref name", Type: types.ColumnString},
		types.Column{Name: "Status", Type: types.ColumnString},
		types.Column{Name: "ID", Type: types.ColumnNumeric},
		types.Column{Name: "Triggered by", Type: types.ColumnString},
		types.Column{Name: "URL", Type: types.ColumnString},
	)
	for _, pl := range pipelines {
		author, ok := authors[pl.SHA]
		if !ok {
			var c Commit
			err := a.client.get(ctx, "/projects/{project}/repository/commits/{sha}",
				map[string]string{"project": project, "sha": pl.SHA}, &c)
			if err != nil {
				return nil, projectErr(project, err)
			}
			author = c.AuthorName
			authors[pl.SHA] = author
		}
		tbl.Append(types.UnixMillis(pl.CreatedAt), pl.Ref, pl.Status, pl.ID, author, pl.WebURL)
	}
	return tbl, nil
}

// Issues lists issues updated within the interval, or all of them when "all"
// is set.
// Payload: {"project": id, "state": "opened"|"closed", "labels": [..], "all": bool}.
func (a *Adapter) Issues(ctx context.Context, data map[string]any, iv types.Interval) (types.Result, error) {
	p := payload.New(datasource.Identifier(Scope, "issues"), data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	state, err := p.String("state", "")
	if err != nil {
		return nil, err
	}
	labels, err := p.Strings("labels")
	if err != nil {
		return nil, err
	}
	all, err := p.Bool("all", false)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if !all {
		q = intervalQuery("updated_after", "updated_before", iv)
	}
	if state != "" {
		q.Set("state", state)
	}
	if len(labels) > 0 {
		q.Set("labels", strings.Join(labels, ","))
	}
	issues, err := getAll[Issue](ctx, a.client, "/projects/{project}/issues",
		map[string]string{"project": project}, q)
	if err != nil {
		return nil, projectErr(project, err)
	}

	tbl := types.NewTable(
		types.Column{Name: "ID", Type: types.ColumnNumeric},
		types.Column{Name: "title", Type: types.ColumnString},
		types.Column{Name: "labels", Type: types.ColumnJSON},
		types.Column{Name: "state", Type: types.ColumnString},
		types.Column{Name: "updated_at", Type: types.ColumnTime},
	)
	for _, is := range issues {
		lbls := is.Labels
		if lbls == nil {
			lbls = []string{}
		}
		tbl.Append(is.ID, is.Title, lbls, is.State, types.UnixMillis(is.UpdatedAt))
	}
	return tbl, nil
}

// MergeRequests lists merge requests updated within the interval.
// Payload: {"project": id, "status": state, "branch": target branch}. The
// branch defaults to main.
func (a *Adapter) MergeRequests(ctx context.Context, data map[string]any, iv types.Interval) (types.Result, error) {
	p := payload.New(datasource.Identifier(Scope, "merge_requests"), data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	status, err := p.String("status", "all")
	if err != nil {
		return nil, err
	}
	branch, err := p.String("branch", defaultBranch)
	if err != nil {
		return nil, err
	}

	q := intervalQuery("updated_after", "updated_before", iv)
	q.Set("state", status)
	q.Set("target_branch", branch)
	mrs, err := getAll[MergeRequest](ctx, a.client, "/projects/{project}/merge_requests",
		map[string]string{"project": project}, q)
	if err != nil {
		return nil, projectErr(project, err)
	}

	tbl := types.NewTable(
		types.Column{Name: "Status", Type: types.ColumnString},
		types.Column{Name: "Source branch", Type: types.ColumnString},
		types.Column{Name: "Target branch", Type: types.ColumnString},
		types.Column{Name: "Author", Type: types.ColumnString},
		types.Column{Name: "Created at", Type: types.ColumnTime},
	)
	for _, mr := range mrs {
		tbl.Append(mr.State, mr.SourceBranch, mr.TargetBranch, mr.Author.Name, types.UnixMillis(mr.CreatedAt))
	}
	return tbl, nil
}

// Milestones lists project milestones. The interval is ignored.
// Payload: {"project": id, "state": "active"|"closed"|"All"}.
func (a *Adapter) Milestones(ctx context.Context, data map[string]any, _ types.Interval) (types.Result, error) {
	p := payload.New(datasource.Identifier(Scope, "milestones"), data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	state, err := p.String("state", "All")
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if !strings.EqualFold(state, "all") {
		q.Set("state", state)
	}
	milestones, err := getAll[Milestone](ctx, a.client, "/projects/{project}/milestones",
		map[string]string{"project": project}, q)
	if err != nil {
		return nil, projectErr(project, err)
	}

	tbl := types.NewTable(
		types.Column{Name: "Title", Type: types.ColumnString},
		types.Column{Name: "ID", Type: types.ColumnNumeric},
		types.Column{Name: "Status", Type: types.ColumnString},
		types.Column{Name: "Description", Type: types.ColumnString},
		types.Column{Name: "Start date", Type: types.ColumnTime},
		types.Column{Name: "Due date", Type: types.ColumnTime},
		types.Column{Name: "Expired", Type: types.ColumnBoolean},
	)
	for _, m := range milestones {
		tbl.Append(m.Title, m.IID, m.State, m.Description, dateMillis(m.StartDate), dateMillis(m.DueDate), m.Expired)
	}
	return tbl, nil
}

// dateMillis converts a calendar date to epoch milliseconds; unset or
// malformed dates become nil.
func dateMillis(s string) any {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return types.UnixMillis(t)
}

// Users lists the members of a project, inherited members included, with
// their public email and current status.
// Payload: {"project": id}.
func (a *Adapter) Users(ctx context.Context, data map[string]any, _ types.Interval) (types.Result, error) {
	p := payload.New(datasource.Identifier(Scope, "users"), data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	members, err := getAll[Member](ctx, a.client, "/projects/{project}/members/all",
		map[string]string{"project": project}, nil)
	if err != nil {
		return nil, projectErr(project, err)
	}

	tbl := types.NewTable(
		types.Column{Name: "id", Type: types.ColumnNumeric},
		types.Column{Name: "name", Type: types.ColumnString},
		types.Column{Name: "username", Type: types.ColumnString},
		types.Column{Name: "avatar_url", Type: types.ColumnString},
		types.Column{Name: "public_email", Type: types.ColumnString},
		types.Column{Name: "active", Type: types.ColumnBoolean},
		types.Column{Name: "busy", Type: types.ColumnBoolean},
		types.Column{Name: "status_emoji", Type: types.ColumnString},
		types.Column{Name: "status_message", Type: types.ColumnString},
	)
	for _, m := range members {
		user := map[string]string{"user": strconv.Itoa(m.ID)}

		var detail UserDetail
		if err := a.client.get(ctx, "/users/{user}", user, &detail); err != nil {
			return nil, fmt.Errorf("gitlab: user %d: %w", m.ID, err)
		}
		var status UserStatus
		if err := a.client.get(ctx, "/users/{user}/status", user, &status); err != nil {
			return nil, fmt.Errorf("gitlab: user %d status: %w", m.ID, err)
		}

		tbl.Append(
			m.ID,
			m.Name,
			m.Username,
			m.AvatarURL,
			detail.PublicEmail,
			m.State == "active",
			status.Availability == "busy",
			statusEmoji(status.Emoji),
			status.Message,
		)
	}
	return tbl, nil
}

// statusEmoji renders a status alias as the emoji itself. Unknown aliases are
// returned as ":alias:".
func statusEmoji(alias string) string {
	if alias == "" {
		return ""
	}
	return strings.TrimSpace(emoji.Sprint(":" + alias + ":"))
}

// Projects offers the configured projects by name.
func (a *Adapter) Projects(ctx context.Context, _ map[string]any) (*types.Options, error) {
	opts := types.NewOptions(len(a.projectIDs))
	for _, id := range a.projectIDs {
		project := strconv.Itoa(id)
		var pr Project
		if err := a.client.get(ctx, "/projects/{project}", map[string]string{"project": project}, &pr); err != nil {
			return nil, projectErr(project, err)
		}
		opts.Set(pr.Name, pr.ID)
	}
	return opts, nil
}

// Branches offers the branch names of a project.
// Data: {"project": id}.
func (a *Adapter) Branches(ctx context.Context, data map[string]any) (*types.Options, error) {
	p := payload.New(Scope+"/branches", data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	branches, err := getAll[Branch](ctx, a.client, "/projects/{project}/repository/branches",
		map[string]string{"project": project}, nil)
	if err != nil {
		return nil, projectErr(project, err)
	}
	opts := types.NewOptions(len(branches))
	for _, b := range branches {
		opts.Set(b.Name, b.Name)
	}
	return opts, nil
}

// Labels offers the label names of a project.
// Data: {"project": id}.
func (a *Adapter) Labels(ctx context.Context, data map[string]any) (*types.Options, error) {
	p := payload.New(Scope+"/labels", data)
	project, err := a.project(p)
	if err != nil {
		return nil, err
	}
	labels, err := getAll[Label](ctx, a.client, "/projects/{project}/labels",
		map[string]string{"project": project}, nil)
	if err != nil {
		return nil, projectErr(project, err)
	}
	opts := types.NewOptions(len(labels))
	for _, l := range labels {
		opts.Set(l.Name, l.Name)
	}
	return opts, nil
}
