// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webfetch implements the fetch_url tool's content-ingestion
// path: a hardened HTTP GET, readability-based article extraction, and
// HTML-to-Markdown conversion, so agents can read web pages without a
// browser in the loop.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
)

const (
	defaultTimeout      = 20 * time.Second
	defaultMaxBodyBytes = 8 * 1024 * 1024
	defaultMaxRedirects = 5
	userAgent           = "kernel-fetch_url/1.0"
)

// Result is what fetch_url returns to the calling agent.
type Result struct {
	URL      string
	Title    string
	Markdown string
}

// Fetcher performs hardened HTTP fetches for the fetch_url tool.
type Fetcher struct {
	client    *http.Client
	Allowlist []string // if non-empty, only these hosts (or subdomains) may be fetched
}

// New creates a Fetcher that never resolves to a loopback or link-local
// address, per fetch_url's domain restriction.
func New(allowlist []string) *Fetcher {
	dialer := &net.Dialer{Timeout: 7 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			if err := rejectUnsafeHost(host); err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, addr)
		},
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= defaultMaxRedirects {
					return fmt.Errorf("webfetch: stopped after %d redirects", defaultMaxRedirects)
				}
				return nil
			},
		},
		Allowlist: allowlist,
	}
}

// rejectUnsafeHost blocks loopback and link-local addresses so fetch_url
// cannot be used to reach the host's own metadata/admin surfaces.
func rejectUnsafeHost(host string) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("webfetch: resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("webfetch: refusing to fetch loopback/link-local address %s", ip)
		}
	}
	return nil
}

func (f *Fetcher) hostAllowed(host string) bool {
	if len(f.Allowlist) == 0 {
		return true
	}
	for _, allowed := range f.Allowlist {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Fetch retrieves rawURL and returns it as Markdown, preferring the main
// article body (via readability) when the page is HTML.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("webfetch: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{}, fmt.Errorf("webfetch: unsupported scheme %q", u.Scheme)
	}
	if !f.hostAllowed(u.Hostname()) {
		return Result{}, fmt.Errorf("webfetch: host %q is not in the allowlist", u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("webfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("webfetch: read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	finalURL := resp.Request.URL.String()

	if !strings.Contains(contentType, "html") {
		return Result{URL: finalURL, Markdown: string(body)}, nil
	}

	html := string(body)
	articleHTML, title := html, ""
	base, _ := url.Parse(finalURL)
	if article, rerr := readability.FromReader(strings.NewReader(html), base); rerr == nil && strings.TrimSpace(article.Content) != "" {
		articleHTML = article.Content
		title = strings.TrimSpace(article.Title)
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(finalURL))
	if err != nil {
		return Result{}, fmt.Errorf("webfetch: html to markdown: %w", err)
	}

	return Result{URL: finalURL, Title: title, Markdown: strings.TrimSpace(md)}, nil
}
