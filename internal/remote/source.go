package remote

import (
	"context"
	"net/http"

	"github.com/omnirom/omnigerrit/internal/models"
)

// Endpoints locates the three remote services of a timeline.
type Endpoints struct {
	GerritURL    string
	OTAURL       string
	AllowListURL string
}

// Source bundles the review server, build feed and allow-list clients
// behind the single ChangeSource contract used by the timeline engine.
type Source struct {
	Gerrit    *GerritClient
	OTA       *OTAClient
	AllowList *AllowListClient

	snapshots SnapshotSource
}

type snapshotClients struct {
	ota       *OTAClient
	allowList *AllowListClient
}

func (s snapshotClients) FetchBuildSnapshot(ctx context.Context, dev models.Device) ([]models.Build, error) {
	return s.ota.FetchBuildSnapshot(ctx, dev)
}

func (s snapshotClients) FetchAllowList(ctx context.Context, device string) (map[string]bool, error) {
	return s.allowList.FetchAllowList(ctx, device)
}

// NewSource creates all clients over a shared http.Client. Snapshot and
// allow-list fetches are retried with retryCfg; nil disables retry.
func NewSource(ep Endpoints, httpClient *http.Client, retryCfg *RetryConfig) (*Source, error) {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	gerrit, err := NewGerritClient(ep.GerritURL, httpClient)
	if err != nil {
		return nil, err
	}
	ota, err := NewOTAClient(ep.OTAURL, httpClient)
	if err != nil {
		return nil, err
	}
	allow := NewAllowListClient(ep.AllowListURL, httpClient)

	var snapshots SnapshotSource = snapshotClients{ota: ota, allowList: allow}
	if retryCfg != nil {
		snapshots = NewRetryClient(snapshots, retryCfg)
	}

	return &Source{Gerrit: gerrit, OTA: ota, AllowList: allow, snapshots: snapshots}, nil
}

// FetchPage fetches one page of changes. It is never retried here.
func (s *Source) FetchPage(ctx context.Context, query string, limit, offset int) ([]models.Change, bool, error) {
	return s.Gerrit.FetchPage(ctx, query, limit, offset)
}

// FetchBuildSnapshot fetches the device's builds.
func (s *Source) FetchBuildSnapshot(ctx context.Context, dev models.Device) ([]models.Build, error) {
	return s.snapshots.FetchBuildSnapshot(ctx, dev)
}

// FetchAllowList fetches the device's project allow-list.
func (s *Source) FetchAllowList(ctx context.Context, device string) (map[string]bool, error) {
	return s.snapshots.FetchAllowList(ctx, device)
}

// FetchRevisionDetail fetches commit message and topic of one change.
func (s *Source) FetchRevisionDetail(ctx context.Context, changeID, revisionID string) (*models.ChangeDetail, error) {
	return s.Gerrit.FetchRevisionDetail(ctx, changeID, revisionID)
}

// Ping probes the review server.
func (s *Source) Ping(ctx context.Context) error {
	return s.Gerrit.Ping(ctx)
}

// ListBranches lists the branches of a project.
func (s *Source) ListBranches(ctx context.Context, project string) ([]*models.Branch, error) {
	return s.Gerrit.ListBranches(ctx, project)
}
