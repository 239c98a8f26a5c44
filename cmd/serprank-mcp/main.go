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

// rankRow mirrors one entry of the serprank ranks array. Empty slots are null.
type rankRow struct {
	ASIN                string `json:"asin"`
	Organic             *int   `json:"organic_rank"`
	SponsoredProduct    *int   `json:"sponsored_product_rank"`
	SponsoredBrand      *int   `json:"sponsored_brand_rank"`
	SponsoredBrandVideo *int   `json:"sponsored_brand_video_rank"`
}

// rankResponse mirrors the serprank rank API response.
type rankResponse struct {
	Success      bool      `json:"success"`
	Keyword      string    `json:"keyword"`
	Status       string    `json:"status"`
	Retryable    bool      `json:"retryable"`
	PagesScanned int       `json:"pages_scanned"`
	Ranks        []rankRow `json:"ranks"`
	CacheStatus  string    `json:"cache_status"`
	Error        *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// batchResponse mirrors the serprank batch API response.
type batchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// batchStatusResponse mirrors the serprank batch status API response.
type batchStatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Results   []*rankResponse `json:"results"`
}

func main() {
	apiURL := os.Getenv("SERPRANK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SERPRANK_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SERPRANK_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"serprank",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	checkRankTool := mcp.NewTool("check_rank",
		mcp.WithDescription("Search the marketplace for a keyword and report where each product first appears as an organic result, a sponsored product, a sponsored brand and a sponsored brand video."),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("The search phrase"),
		),
		mcp.WithArray("asins",
			mcp.Required(),
			mcp.Description("Product codes (10 uppercase characters) to locate"),
		),
		mcp.WithNumber("pages",
			mcp.Description("Result pages to scan (default: 3, max: 10)"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Reuse a cached result younger than this many milliseconds"),
		),
	)
	s.AddTool(checkRankTool, handleCheckRank(apiURL, apiKey))

	batchTool := mcp.NewTool("batch_check_rank",
		mcp.WithDescription("Check the same products against several keywords. Keywords run in the background with pacing between them, so this can take minutes."),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.Description("Search phrases to check"),
		),
		mcp.WithArray("asins",
			mcp.Required(),
			mcp.Description("Product codes to locate for every keyword"),
		),
		mcp.WithNumber("pages",
			mcp.Description("Result pages to scan per keyword (default: 3, max: 10)"),
		),
	)
	s.AddTool(batchTool, handleBatchCheckRank(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the serprank API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until status is no longer "processing" or context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}

func handleCheckRank(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keyword, err := request.RequireString("keyword")
		if err != nil {
			return mcp.NewToolResultError("keyword is required"), nil
		}
		asins, err := request.RequireStringSlice("asins")
		if err != nil {
			return mcp.NewToolResultError("asins is required and must be an array of strings"), nil
		}

		payload := map[string]any{
			"keyword": keyword,
			"asins":   upper(asins),
		}
		if pages := request.GetInt("pages", 0); pages > 0 {
			payload["pages"] = pages
		}
		if maxAge := request.GetInt("max_age", 0); maxAge > 0 {
			payload["max_age"] = maxAge
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/rank", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("rank request failed: %v", err)), nil
		}

		var rr rankResponse
		if err := json.Unmarshal(respBody, &rr); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if rr.Status == "" && rr.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", rr.Error.Code, rr.Error.Message)), nil
		}

		var sb strings.Builder
		writeRankResult(&sb, &rr)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleBatchCheckRank(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 2 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keywords, err := request.RequireStringSlice("keywords")
		if err != nil {
			return mcp.NewToolResultError("keywords is required and must be an array of strings"), nil
		}
		asins, err := request.RequireStringSlice("asins")
		if err != nil {
			return mcp.NewToolResultError("asins is required and must be an array of strings"), nil
		}

		entries := make([]map[string]any, 0, len(keywords))
		for _, kw := range keywords {
			entries = append(entries, map[string]any{"keyword": kw, "asins": upper(asins)})
		}
		payload := map[string]any{"keywords": entries}
		if pages := request.GetInt("pages", 0); pages > 0 {
			payload["options"] = map[string]any{"pages": pages}
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/batch/rank", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var batchResp batchResponse
		if err := json.Unmarshal(respBody, &batchResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}
		if batchResp.ID == "" {
			return mcp.NewToolResultError("batch job creation failed"), nil
		}

		resultBody, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/batch/"+batchResp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		var statusResp batchStatusResponse
		if err := json.Unmarshal(resultBody, &statusResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch status: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Batch %s: %s (%d/%d keywords)\n\n", statusResp.ID, statusResp.Status, statusResp.Completed, statusResp.Total))
		for i, rr := range statusResp.Results {
			if rr == nil {
				sb.WriteString(fmt.Sprintf("--- [%d] %s: not run ---\n\n", i+1, keywords[i]))
				continue
			}
			writeRankResult(&sb, rr)
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func writeRankResult(sb *strings.Builder, rr *rankResponse) {
	sb.WriteString(fmt.Sprintf("Keyword: %s\nStatus: %s, %d page(s) scanned", rr.Keyword, rr.Status, rr.PagesScanned))
	if rr.CacheStatus == "hit" {
		sb.WriteString(" (cached)")
	}
	sb.WriteString("\n")
	if rr.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: [%s] %s", rr.Error.Code, rr.Error.Message))
		if rr.Retryable {
			sb.WriteString(" (retry later)")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("ASIN        organic  sp  sb  sbv\n")
	for _, r := range rr.Ranks {
		sb.WriteString(fmt.Sprintf("%s  %7s  %2s  %2s  %3s\n",
			r.ASIN, slot(r.Organic), slot(r.SponsoredProduct), slot(r.SponsoredBrand), slot(r.SponsoredBrandVideo)))
	}
}

func slot(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func upper(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.ToUpper(strings.TrimSpace(id))
	}
	return out
}
