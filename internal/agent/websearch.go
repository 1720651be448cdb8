package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	noWebResults = "No web results found."
	webUserAgent = "Mozilla/5.0 (compatible; agentchat/1.0)"
)

type WebResult struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

// SearchWeb returns the top results as a JSON list of title, href and body.
func (t *Toolbox) SearchWeb(ctx context.Context, query string) string {
	results, err := t.searchWeb(ctx, query)
	if err != nil {
		t.logger.Error("web search failed", zap.String("query", query), zap.Error(err))
		return toolFallback
	}
	t.logger.Info("web search", zap.String("query", query), zap.Int("results", len(results)))

	if len(results) == 0 {
		return noWebResults
	}
	out, err := json.Marshal(results)
	if err != nil {
		return toolFallback
	}
	return string(out)
}

func (t *Toolbox) searchWeb(ctx context.Context, query string) ([]WebResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.WebSearchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build web search request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("web search response status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse web search page failed: %w", err)
	}
	results := parseWebResults(doc)
	if len(results) > t.opts.WebSearchResults {
		results = results[:t.opts.WebSearchResults]
	}
	return results, nil
}

// parseWebResults reads organic results off a DuckDuckGo HTML page. Each
// result__a link opens a result; the next result__snippet fills its body.
func parseWebResults(doc *html.Node) []WebResult {
	var results []WebResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result--ad"):
				return
			case n.DataAtom == atom.A && hasClass(n, "result__a"):
				results = append(results, WebResult{
					Title: textContent(n),
					Href:  resolveResultLink(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet"):
				if last := len(results) - 1; last >= 0 && results[last].Body == "" {
					results[last].Body = textContent(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// resolveResultLink unwraps DuckDuckGo's redirect links.
func resolveResultLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
