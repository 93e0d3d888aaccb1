package remote

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
)

// allowListDoc is the repo allow-list document:
//
//	<devices>
//	  <device code="oneplus9">
//	    <project name="android_device_oneplus_oneplus9"/>
//	  </device>
//	</devices>
type allowListDoc struct {
	XMLName xml.Name `xml:"devices"`
	Devices []struct {
		Code     string `xml:"code,attr"`
		Projects []struct {
			Name string `xml:"name,attr"`
		} `xml:"project"`
	} `xml:"device"`
}

// AllowListClient fetches the per-device project allow-list.
type AllowListClient struct {
	url        string
	httpClient *http.Client
}

// NewAllowListClient creates an allow-list client. An empty url yields a
// client that always returns an empty allow-list.
func NewAllowListClient(url string, httpClient *http.Client) *AllowListClient {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &AllowListClient{url: strings.TrimSpace(url), httpClient: httpClient}
}

// FetchAllowList returns the set of project names allowed for device.
func (c *AllowListClient) FetchAllowList(ctx context.Context, device string) (map[string]bool, error) {
	allowed := make(map[string]bool)
	if c.url == "" {
		return allowed, nil
	}

	body, _, err := get(ctx, c.httpClient, "fetch allow-list", c.url)
	if err != nil {
		return nil, err
	}

	var doc allowListDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{Op: "fetch allow-list", Err: err}
	}

	for _, d := range doc.Devices {
		if d.Code != device {
			continue
		}
		for _, p := range d.Projects {
			if name := strings.TrimSpace(p.Name); name != "" {
				allowed[name] = true
			}
		}
	}
	return allowed, nil
}
