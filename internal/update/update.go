// Package update checks a GitHub releases endpoint for a newer build.
package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/mod/semver"
)

// DefaultURL is the latest-release endpoint of the project.
const DefaultURL = "https://api.github.com/repos/Brando1998/RNDC/releases/latest"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []asset `json:"assets"`
}

// Result is the outcome of a check.
type Result struct {
	Current   string
	Latest    string
	Available bool
	// URL points at a .zip or .exe asset when one is attached, else the
	// release page.
	URL string
}

// Checker queries URL.
type Checker struct {
	URL    string
	Client *http.Client
}

// NewChecker returns a checker with a short timeout. An empty url uses
// DefaultURL.
func NewChecker(url string) *Checker {
	if url == "" {
		url = DefaultURL
	}
	return &Checker{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

// Check compares current against the latest release.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	res := Result{Current: current}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return res, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return res, fmt.Errorf("check update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("check update: %s", resp.Status)
	}

	var rel release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rel); err != nil {
		return res, fmt.Errorf("decode release: %w", err)
	}
	res.Latest = strings.TrimPrefix(rel.TagName, "v")
	if !Newer(rel.TagName, current) {
		return res, nil
	}
	res.Available = true
	res.URL = rel.HTMLURL
	for _, a := range rel.Assets {
		if strings.HasSuffix(a.Name, ".zip") || strings.HasSuffix(a.Name, ".exe") {
			res.URL = a.DownloadURL
			break
		}
	}
	return res, nil
}

// Newer reports whether latest is a higher semantic version than current.
// Either may omit the leading "v". Invalid versions are never newer.
func Newer(latest, current string) bool {
	l, c := canonical(latest), canonical(current)
	if !semver.IsValid(l) {
		return false
	}
	if !semver.IsValid(c) {
		return true
	}
	return semver.Compare(l, c) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
