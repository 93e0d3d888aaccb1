// Package remote talks to the review server, the build snapshot feed and
// the repo allow-list document. It holds no business logic.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// gerritMagicPrefix guards Gerrit JSON responses against XSSI.
const gerritMagicPrefix = ")]}'"

const maxErrorBody = 512

// DefaultHTTPClient returns the transport shared by all remote clients.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// get issues a GET and returns the body of a 2xx response. Transport
// failures become *NetworkError, non-2xx responses *ServerError.
func get(ctx context.Context, hc *http.Client, op, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, 0, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(stripMagic(body)))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, resp.StatusCode, &ServerError{Op: op, Status: resp.StatusCode, Body: msg}
	}

	return body, resp.StatusCode, nil
}

// getJSON fetches url and decodes the (magic-stripped) body into v.
func getJSON(ctx context.Context, hc *http.Client, op, url string, v any) error {
	body, _, err := get(ctx, hc, op, url)
	if err != nil {
		return err
	}
	return decodeJSON(op, body, v)
}

func decodeJSON(op string, body []byte, v any) error {
	if err := json.Unmarshal(stripMagic(body), v); err != nil {
		return &ParseError{Op: op, Err: err}
	}
	return nil
}

// stripMagic removes the Gerrit magic first line if present.
func stripMagic(body []byte) []byte {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte(gerritMagicPrefix)) {
		return body
	}
	trimmed = trimmed[len(gerritMagicPrefix):]
	if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	} else {
		trimmed = nil
	}
	return bytes.TrimSpace(trimmed)
}

var errEmptyBaseURL = errors.New("base URL is empty")

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errEmptyBaseURL
	}
	return strings.TrimRight(raw, "/"), nil
}
