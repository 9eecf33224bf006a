package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nachoal/kitgpt-go/tools/base"
)

const wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

// WikipediaParams defines the parameters for the wikipedia tool
type WikipediaParams struct {
	Query string `json:"query" schema:"required" description:"Search terms"`
	Limit int    `json:"limit,omitempty" schema:"min:1,max:10" description:"Number of results (default 3)"`
}

// WikipediaTool searches Wikipedia and writes the results into the chat
type WikipediaTool struct {
	base.BaseTool
	client   *http.Client
	endpoint string
}

// NewWikipediaTool creates the wikipedia tool. An empty endpoint uses the public API.
func NewWikipediaTool(endpoint string) *WikipediaTool {
	if endpoint == "" {
		endpoint = wikipediaEndpoint
	}
	return &WikipediaTool{
		BaseTool: base.BaseTool{
			ToolName:    "wikipedia",
			ToolDesc:    "Search Wikipedia and post the most relevant articles with a short extract of the best match.",
			ToolDisplay: "Searching Wikipedia...",
		},
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
	}
}

// Parameters returns the parameters struct
func (t *WikipediaTool) Parameters() interface{} {
	return &WikipediaParams{}
}

// Execute sends a header message, then appends one paragraph per result
func (t *WikipediaTool) Execute(ctx context.Context, chat ChatControls, params interface{}) error {
	args, ok := params.(*WikipediaParams)
	if !ok {
		return NewToolError("INVALID_PARAMS", "unexpected parameter type").
			WithDetail("type", fmt.Sprintf("%T", params))
	}

	query := strings.TrimSpace(args.Query)
	if query == "" {
		return NewToolError("VALIDATION_FAILED", "Query cannot be empty")
	}
	limit := args.Limit
	if limit == 0 {
		limit = 3
	}

	var result struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
				PageID  int    `json:"pageid"`
			} `json:"search"`
		} `json:"query"`
	}
	err := t.get(ctx, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"format":   {"json"},
		"srlimit":  {fmt.Sprintf("%d", limit)},
	}, &result)
	if err != nil {
		return NewToolError("HTTP_ERROR", "Failed to fetch Wikipedia data").
			WithDetail("query", query).
			Wrap(err)
	}

	if len(result.Query.Search) == 0 {
		chat.Send(fmt.Sprintf("No Wikipedia results found for '%s'.", query))
		return nil
	}

	chat.Send(fmt.Sprintf("Wikipedia results for '%s':", query))
	for i, item := range result.Query.Search {
		entry := fmt.Sprintf("%d. **%s**: %s", i+1, item.Title, cleanSnippet(item.Snippet))
		if i == 0 {
			if extract, err := t.fetchExtract(ctx, item.PageID); err == nil && extract != "" {
				entry += "\n\n> " + extract
			}
		}
		chat.AppendLine(entry)
	}
	return nil
}

// fetchExtract gets the introduction extract for a specific page
func (t *WikipediaTool) fetchExtract(ctx context.Context, pageID int) (string, error) {
	var result struct {
		Query struct {
			Pages map[string]struct {
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	err := t.get(ctx, url.Values{
		"action":      {"query"},
		"pageids":     {fmt.Sprintf("%d", pageID)},
		"prop":        {"extracts"},
		"exintro":     {"true"},
		"explaintext": {"true"},
		"exsentences": {"3"},
		"format":      {"json"},
	}, &result)
	if err != nil {
		return "", err
	}

	for _, page := range result.Query.Pages {
		return strings.TrimSpace(page.Extract), nil
	}
	return "", nil
}

func (t *WikipediaTool) get(ctx context.Context, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "kitgpt-go/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

var snippetReplacer = strings.NewReplacer(
	`<span class="searchmatch">`, "**",
	"</span>", "**",
	"&quot;", `"`,
	"&amp;", "&",
	"&#039;", "'",
)

func cleanSnippet(s string) string {
	return snippetReplacer.Replace(s)
}
