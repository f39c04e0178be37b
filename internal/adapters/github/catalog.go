package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devploy/playground-paas/internal/core/domain"
)

const defaultBaseURL = "https://api.github.com"

// Client implements ports.Catalog against the GitHub REST API. Repositories
// qualify as deployable when their root carries a Dockerfile or a compose
// file. Any failure surfaces uniformly as domain.ErrCatalogUnavailable.
type Client struct {
	httpc   *http.Client
	token   string
	baseURL string
}

func NewClient(token string) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: 15 * time.Second},
		token:   token,
		baseURL: defaultBaseURL,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

type repo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
}

type contentItem struct {
	Name string `json:"name"`
}

// ListApps returns the owner's repositories that look deployable. Repos whose
// content listing fails are skipped rather than failing the whole catalog.
func (c *Client) ListApps(ctx context.Context, owner string) ([]domain.AppDescriptor, error) {
	var repos []repo
	url := fmt.Sprintf("%s/users/%s/repos?per_page=100&sort=updated", c.baseURL, owner)
	if err := c.get(ctx, url, &repos); err != nil {
		return nil, err
	}

	apps := make([]domain.AppDescriptor, 0, len(repos))
	for _, r := range repos {
		var contents []contentItem
		contentsURL := fmt.Sprintf("%s/repos/%s/contents/", c.baseURL, r.FullName)
		if err := c.get(ctx, contentsURL, &contents); err != nil {
			continue
		}
		if !hasDeployFile(contents) {
			continue
		}

		desc := r.Description
		if desc == "" {
			desc = "No description"
		}
		apps = append(apps, domain.AppDescriptor{
			Name:        r.Name,
			Description: desc,
			Repository:  r.FullName,
			URL:         r.HTMLURL,
			Language:    r.Language,
			Stars:       r.Stars,
		})
	}
	return apps, nil
}

func hasDeployFile(contents []contentItem) bool {
	for _, item := range contents {
		switch strings.ToLower(item.Name) {
		case "dockerfile", "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml":
			return true
		}
	}
	return false
}

// get performs an authenticated GET and maps every failure class (auth, rate
// limit, network, decode) onto domain.ErrCatalogUnavailable.
func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: network: %v", domain.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: authentication rejected", domain.ErrCatalogUnavailable)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited", domain.ErrCatalogUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %d", domain.ErrCatalogUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", domain.ErrCatalogUnavailable, err)
	}
	return nil
}
