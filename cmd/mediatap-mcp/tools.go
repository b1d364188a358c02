package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiError mirrors the API's error detail.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// urlList mirrors the getVideoUrls response.
type urlList struct {
	URLs     []string `json:"urls"`
	Count    int      `json:"count"`
	Metadata []struct {
		URL    string `json:"url"`
		Source string `json:"source"`
	} `json:"metadata"`
	Error *apiError `json:"error"`
}

// status mirrors the clearUrls/addUrl response.
type status struct {
	Status string    `json:"status"`
	Count  *int      `json:"count"`
	Error  *apiError `json:"error"`
}

// captureResponse mirrors the capture API response model.
type captureResponse struct {
	Success    bool   `json:"success"`
	FinalURL   string `json:"final_url"`
	EngineUsed string `json:"engine_used"`
	Found      []struct {
		URL    string `json:"url"`
		Source string `json:"source"`
		New    bool   `json:"new"`
	} `json:"found"`
	NewCount int `json:"new_count"`
	Total    int `json:"total"`
	Metadata struct {
		Title string `json:"title"`
	} `json:"metadata"`
	Error *apiError `json:"error"`
}

// apiClient talks to a running mediatap server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// do sends a request to the API and returns the response body. payload may
// be nil.
func (a *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// message posts one tagged message.
func (a *apiClient) message(ctx context.Context, msg map[string]string) ([]byte, error) {
	return a.do(ctx, http.MethodPost, "/api/v1/messages", msg)
}

func errorResult(prefix string, e *apiError) *mcp.CallToolResult {
	if e == nil {
		return mcp.NewToolResultError(prefix)
	}
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", e.Code, e.Message))
}

func handleGetVideoURLs(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := api.message(ctx, map[string]string{"type": "getVideoUrls"})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var list urlList
		if err := json.Unmarshal(body, &list); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if list.Error != nil {
			return errorResult("listing failed", list.Error), nil
		}

		if list.Count == 0 {
			return mcp.NewToolResultText("No media URLs captured yet."), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d media URLs captured:\n\n", list.Count)
		for i, m := range list.Metadata {
			fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, m.URL, m.Source)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleClearURLs(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := api.message(ctx, map[string]string{"type": "clearUrls"})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var st status
		if err := json.Unmarshal(body, &st); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if st.Error != nil {
			return errorResult("clear failed", st.Error), nil
		}
		n := 0
		if st.Count != nil {
			n = *st.Count
		}
		return mcp.NewToolResultText(fmt.Sprintf("Cleared %d URLs.", n)), nil
	}
}

func handleAddURL(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		msg := map[string]string{"type": "addUrl", "url": url}
		if source := request.GetString("source", ""); source != "" {
			msg["source"] = source
		}

		body, err := api.message(ctx, msg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var st status
		if err := json.Unmarshal(body, &st); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if st.Error != nil {
			return errorResult("add failed", st.Error), nil
		}
		if st.Status == "rejected" {
			return mcp.NewToolResultError(fmt.Sprintf("%s was rejected (data:, blob: or too short)", url)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %s", url, st.Status)), nil
	}
}

func handleExportJSON(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := api.do(ctx, http.MethodGet, "/api/v1/export", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}

func handleCapturePage(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := map[string]any{"url": url}
		if engine := request.GetString("engine", ""); engine != "" {
			payload["engine"] = engine
		}
		args := request.GetArguments()
		if v, ok := args["observe_ms"]; ok {
			payload["observe_ms"] = v
		}
		if v, ok := args["timeout"]; ok {
			payload["timeout"] = v
		}
		if request.GetBool("stealth", false) {
			payload["stealth"] = true
		}

		body, err := api.do(ctx, http.MethodPost, "/api/v1/capture", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("capture request failed: %v", err)), nil
		}
		var cr captureResponse
		if err := json.Unmarshal(body, &cr); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !cr.Success {
			return errorResult("capture failed", cr.Error), nil
		}

		var sb strings.Builder
		if cr.Metadata.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", cr.Metadata.Title)
		}
		fmt.Fprintf(&sb, "Page: %s (engine: %s)\n", cr.FinalURL, cr.EngineUsed)
		fmt.Fprintf(&sb, "Found %d media URLs (%d new, %d total captured)\n\n", len(cr.Found), cr.NewCount, cr.Total)
		for _, f := range cr.Found {
			marker := ""
			if f.New {
				marker = " [new]"
			}
			fmt.Fprintf(&sb, "- %s (%s)%s\n", f.URL, f.Source, marker)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
