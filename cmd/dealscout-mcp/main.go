package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// progressResponse mirrors the progress snapshot served by the API.
type progressResponse struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Game    string  `json:"game"`
	Status  string  `json:"status"`
	Percent float64 `json:"percent"`
}

// resultResponse mirrors one entry of GET /api/results/:tab.
type resultResponse struct {
	SearchName      string   `json:"search_name"`
	MatchedName     string   `json:"matched_name"`
	Price           *string  `json:"price"`
	PriceValue      *float64 `json:"price_value"`
	URL             *string  `json:"url"`
	MatchConfidence float64  `json:"match_confidence"`
}

// startResponse mirrors the API start response.
type startResponse struct {
	Status  string `json:"status"`
	Tab     string `json:"tab"`
	Total   int    `json:"total"`
	Workers int    `json:"workers"`
}

// errorResponse mirrors the API error envelope.
type errorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("DEALSCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:5000"
	}
	c := &apiClient{
		baseURL: strings.TrimSuffix(apiURL, "/"),
		apiKey:  os.Getenv("DEALSCOUT_API_KEY"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	s := server.NewMCPServer(
		"dealscout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	registerTools(s, c)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func tabOption() mcp.ToolOption {
	return mcp.WithString("tab",
		mcp.Required(),
		mcp.Description("Job slot to use, e.g. 'trader' or 'my'"),
	)
}

func registerTools(s *server.MCPServer, c *apiClient) {
	s.AddTool(mcp.NewTool("start_price_scrape",
		mcp.WithDescription("Start looking up gg.deals prices for a list of game titles. Runs in the background; poll price_scrape_progress until the status is completed, stopped or error."),
		tabOption(),
		mcp.WithString("games",
			mcp.Required(),
			mcp.Description("Game titles, one per line"),
		),
		mcp.WithNumber("workers",
			mcp.Description("Parallel browser sessions (default: 3)"),
		),
	), handleStart(c))

	s.AddTool(mcp.NewTool("stop_price_scrape",
		mcp.WithDescription("Stop the running price scrape of a tab. Titles already looked up are kept."),
		tabOption(),
	), handleStop(c))

	s.AddTool(mcp.NewTool("price_scrape_progress",
		mcp.WithDescription("Report how far the price scrape of a tab has come."),
		tabOption(),
	), handleProgress(c))

	s.AddTool(mcp.NewTool("price_scrape_results",
		mcp.WithDescription("List the prices found so far for a tab."),
		tabOption(),
		mcp.WithBoolean("only_found",
			mcp.Description("Skip titles without an accepted listing (default: false)"),
		),
	), handleResults(c))
}

// apiClient calls the dealscout HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// do sends a request and decodes a 2xx body into out. Error envelopes are
// returned as errors carrying the API code.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var e errorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Error != nil {
			return fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func handleStart(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tab, err := request.RequireString("tab")
		if err != nil {
			return mcp.NewToolResultError("tab is required"), nil
		}
		games, err := request.RequireString("games")
		if err != nil {
			return mcp.NewToolResultError("games is required"), nil
		}

		payload := map[string]any{"games": games}
		if workers := request.GetInt("workers", 0); workers > 0 {
			payload["workers"] = workers
		}

		var resp startResponse
		if err := c.do(ctx, http.MethodPost, "/api/start/"+tab, payload, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Started scrape on %s: %d titles, %d workers.",
			resp.Tab, resp.Total, resp.Workers)), nil
	}
}

func handleStop(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tab, err := request.RequireString("tab")
		if err != nil {
			return mcp.NewToolResultError("tab is required"), nil
		}
		if err := c.do(ctx, http.MethodPost, "/api/stop/"+tab, nil, nil); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Stop requested for %s; titles in flight will finish first.", tab)), nil
	}
}

func handleProgress(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tab, err := request.RequireString("tab")
		if err != nil {
			return mcp.NewToolResultError("tab is required"), nil
		}

		var p progressResponse
		if err := c.do(ctx, http.MethodGet, "/api/progress/"+tab, nil, &p); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("progress failed: %v", err)), nil
		}

		text := fmt.Sprintf("%s: %s, %d/%d (%.1f%%)", tab, p.Status, p.Current, p.Total, p.Percent)
		if p.Game != "" {
			text += fmt.Sprintf(", last: %s", p.Game)
		}
		return mcp.NewToolResultText(text), nil
	}
}

func handleResults(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tab, err := request.RequireString("tab")
		if err != nil {
			return mcp.NewToolResultError("tab is required"), nil
		}
		onlyFound := request.GetBool("only_found", false)

		var results []resultResponse
		if err := c.do(ctx, http.MethodGet, "/api/results/"+tab, nil, &results); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("results failed: %v", err)), nil
		}

		var sb strings.Builder
		shown := 0
		for _, r := range results {
			if onlyFound && r.MatchConfidence == 0 {
				continue
			}
			shown++
			price := "N/A"
			if r.Price != nil && *r.Price != "" {
				price = *r.Price
			}
			fmt.Fprintf(&sb, "%d. %s -> %s: %s", shown, r.SearchName, r.MatchedName, price)
			if r.MatchConfidence > 0 {
				fmt.Fprintf(&sb, " (confidence %.3f)", r.MatchConfidence)
			}
			if r.URL != nil {
				fmt.Fprintf(&sb, "\n   %s", *r.URL)
			}
			sb.WriteString("\n")
		}
		if shown == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No results for %s yet.", tab)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d results for %s:\n\n%s", shown, tab, sb.String())), nil
	}
}
