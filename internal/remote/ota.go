package remote

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/omnirom/omnigerrit/internal/models"
)

// DefaultOTARoots are the snapshot directories probed in order.
var DefaultOTARoots = []string{"", "tmp"}

// OTAClient reads the build snapshot feed.
type OTAClient struct {
	baseURL    string
	roots      []string
	httpClient *http.Client

	mu   sync.Mutex
	root *string // resolved snapshot root, nil until probed
}

// NewOTAClient creates a build feed client. A nil httpClient uses
// DefaultHTTPClient.
func NewOTAClient(baseURL string, httpClient *http.Client) (*OTAClient, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ota client: %w", err)
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &OTAClient{
		baseURL:    base,
		roots:      DefaultOTARoots,
		httpClient: httpClient,
	}, nil
}

func (c *OTAClient) snapshotURL(root string) string {
	if root == "" {
		return c.baseURL + "/ota_info.php"
	}
	return c.baseURL + "/" + root + "/ota_info.php"
}

func (c *OTAClient) fetchSnapshot(ctx context.Context, root string) (map[string][]buildInfo, error) {
	var snapshot map[string][]buildInfo
	if err := getJSON(ctx, c.httpClient, "fetch build snapshot", c.snapshotURL(root), &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// resolveRoot finds the first root whose snapshot holds a build of dev.
// Retryable failures are returned uncached so a later call probes again.
func (c *OTAClient) resolveRoot(ctx context.Context, dev models.Device) (string, map[string][]buildInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.root != nil {
		return *c.root, nil, nil
	}

	var (
		lastErr  error
		fallback *string
	)
	for _, root := range c.roots {
		snapshot, err := c.fetchSnapshot(ctx, root)
		if err != nil {
			if isRetryable(err) || ctx.Err() != nil {
				return "", nil, err
			}
			lastErr = err
			continue
		}
		if fallback == nil {
			r := root
			fallback = &r
		}
		if len(deviceBuilds(snapshot, dev)) > 0 {
			r := root
			c.root = &r
			return root, snapshot, nil
		}
	}

	if fallback == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("fetch build snapshot: no snapshot roots configured")
		}
		return "", nil, lastErr
	}
	c.root = fallback
	return *fallback, nil, nil
}

// FetchBuildSnapshot returns the builds of dev's build line, newest first.
func (c *OTAClient) FetchBuildSnapshot(ctx context.Context, dev models.Device) ([]models.Build, error) {
	root, snapshot, err := c.resolveRoot(ctx, dev)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		if snapshot, err = c.fetchSnapshot(ctx, root); err != nil {
			return nil, err
		}
	}
	return deviceBuilds(snapshot, dev), nil
}

func deviceBuilds(snapshot map[string][]buildInfo, dev models.Device) []models.Build {
	infos, ok := snapshot[dev.Name]
	if !ok {
		return nil
	}
	builds := make([]models.Build, 0, len(infos))
	for _, bi := range infos {
		b := models.Build{Filename: bi.Filename, Timestamp: bi.Timestamp, Size: bi.Size}
		if dev.Matches(&b) {
			builds = append(builds, b)
		}
	}
	sort.SliceStable(builds, func(i, j int) bool {
		return builds[i].BuildTime().After(builds[j].BuildTime())
	})
	return builds
}
