// Package cdp finds Chrome DevTools endpoints over their HTTP listing and
// drives pages through chromedp.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Target is one entry of the DevTools /json listing.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// IsPage reports whether the target is a top-level page that can be driven.
func (t Target) IsPage() bool {
	return t.Type == "page" && t.WebSocketDebuggerURL != ""
}

// VersionInfo is the /json/version document.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Endpoint returns the local DevTools HTTP address for a port.
func Endpoint(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// ListTargets fetches the target listing from a DevTools endpoint. A
// successful call doubles as a liveness probe of the endpoint.
func ListTargets(ctx context.Context, addr string) ([]Target, error) {
	var targets []Target
	if err := getJSON(ctx, "http://"+addr+"/json", &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Version fetches /json/version from a DevTools endpoint.
func Version(ctx context.Context, addr string) (*VersionInfo, error) {
	var info VersionInfo
	if err := getJSON(ctx, "http://"+addr+"/json/version", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// NewTarget opens a new page target at url.
func NewTarget(ctx context.Context, addr, url string) (*Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, "http://"+addr+"/json/new?"+url, nil)
	if err != nil {
		return nil, err
	}
	var t Target
	if err := doJSON(req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FirstPage returns the first drivable page in a listing.
func FirstPage(targets []Target) (Target, bool) {
	for _, t := range targets {
		if t.IsPage() {
			return t, true
		}
	}
	return Target{}, false
}

func getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(req, out)
}

func doJSON(req *http.Request, out interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("devtools request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools request %s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode devtools response %s: %w", req.URL.Path, err)
	}
	return nil
}
