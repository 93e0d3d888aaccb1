package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/omnirom/omnigerrit/internal/models"
)

// DefaultQueryOptions are the o= options sent with every change-list query.
var DefaultQueryOptions = []string{"CURRENT_REVISION", "DETAILED_ACCOUNTS"}

// GerritClient reads changes from a Gerrit review server.
type GerritClient struct {
	baseURL    string
	options    []string
	httpClient *http.Client
}

// NewGerritClient creates a review server client. A nil httpClient uses
// DefaultHTTPClient.
func NewGerritClient(baseURL string, httpClient *http.Client) (*GerritClient, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gerrit client: %w", err)
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &GerritClient{
		baseURL:    base,
		options:    DefaultQueryOptions,
		httpClient: httpClient,
	}, nil
}

func (c *GerritClient) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// changesQuery encodes the list parameters. query is already encoded and
// is passed through verbatim.
func (c *GerritClient) changesQuery(query string, limit, offset int) string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(query)
	b.WriteString("&n=")
	b.WriteString(strconv.Itoa(limit))
	b.WriteString("&S=")
	b.WriteString(strconv.Itoa(offset))
	for _, o := range c.options {
		b.WriteString("&o=")
		b.WriteString(url.QueryEscape(o))
	}
	return b.String()
}

// FetchPage returns one page of changes and whether the sequence is exhausted.
func (c *GerritClient) FetchPage(ctx context.Context, query string, limit, offset int) ([]models.Change, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("fetch changes: limit must be positive, got %d", limit)
	}
	op := fmt.Sprintf("fetch changes (n=%d S=%d)", limit, offset)
	var infos []changeInfo
	if err := getJSON(ctx, c.httpClient, op, c.url("changes/")+"?"+c.changesQuery(query, limit, offset), &infos); err != nil {
		return nil, false, err
	}

	changes := make([]models.Change, 0, len(infos))
	for i := range infos {
		ch, err := infos[i].toModel()
		if err != nil {
			return nil, false, &ParseError{Op: op, Err: err}
		}
		changes = append(changes, ch)
	}

	exhausted := len(infos) < limit || !infos[len(infos)-1].MoreChanges
	return changes, exhausted, nil
}

// GetChange returns a single change with its current revision.
func (c *GerritClient) GetChange(ctx context.Context, id string) (*models.Change, error) {
	u := c.url("changes/"+url.PathEscape(id)+"/detail") + "?o=CURRENT_REVISION&o=CURRENT_COMMIT&o=DETAILED_ACCOUNTS"
	var info changeInfo
	if err := getJSON(ctx, c.httpClient, "get change "+id, u, &info); err != nil {
		return nil, err
	}
	ch, err := info.toModel()
	if err != nil {
		return nil, &ParseError{Op: "get change " + id, Err: err}
	}
	return &ch, nil
}

// GetTopic returns the topic of a change, or "" if none is set.
func (c *GerritClient) GetTopic(ctx context.Context, id string) (string, error) {
	op := "get topic " + id
	body, status, err := get(ctx, c.httpClient, op, c.url("changes/"+url.PathEscape(id)+"/topic"))
	if err != nil {
		return "", err
	}
	if status == http.StatusNoContent || len(stripMagic(body)) == 0 {
		return "", nil
	}
	var topic string
	if err := decodeJSON(op, body, &topic); err != nil {
		return "", err
	}
	return topic, nil
}

// GetCommit returns the commit of a revision.
func (c *GerritClient) GetCommit(ctx context.Context, id, revision string) (*models.CommitInfo, error) {
	if revision == "" {
		revision = "current"
	}
	u := c.url("changes/" + url.PathEscape(id) + "/revisions/" + url.PathEscape(revision) + "/commit")
	var commit models.CommitInfo
	if err := getJSON(ctx, c.httpClient, "get commit "+id, u, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

// FetchRevisionDetail returns commit message and topic of one change.
func (c *GerritClient) FetchRevisionDetail(ctx context.Context, changeID, revisionID string) (*models.ChangeDetail, error) {
	ch, err := c.GetChange(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if revisionID == "" {
		revisionID = ch.RevisionID
	}

	commit, err := c.GetCommit(ctx, changeID, revisionID)
	if err != nil {
		return nil, err
	}

	topic := ch.Topic
	if topic == "" {
		if topic, err = c.GetTopic(ctx, changeID); err != nil {
			return nil, err
		}
	}

	ch.CommitMessage = commit.TrimmedMessage()
	ch.Topic = topic
	return &models.ChangeDetail{
		Change:        *ch,
		CommitMessage: ch.CommitMessage,
		Topic:         topic,
	}, nil
}

// ListBranches returns the branches of a project.
func (c *GerritClient) ListBranches(ctx context.Context, project string) ([]*models.Branch, error) {
	var branches []*models.Branch
	if err := getJSON(ctx, c.httpClient, "list branches "+project, c.url("projects/"+url.PathEscape(project)+"/branches/"), &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// Ping checks that the review server answers at all.
func (c *GerritClient) Ping(ctx context.Context) error {
	_, _, err := get(ctx, c.httpClient, "ping", c.url("config/server/version"))
	return err
}
