package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("MEDIATAP_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Optional: only needed when the server has auth enabled.
	apiKey := os.Getenv("MEDIATAP_API_KEY")

	s := newServer(&apiClient{
		baseURL: apiURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 150 * time.Second},
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// newServer registers every tool against api.
func newServer(api *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"mediatap",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("get_video_urls",
		mcp.WithDescription("List every media URL captured so far (HLS/DASH manifests, video and audio files), in first-seen order, with the source that reported each one."),
	), handleGetVideoURLs(api))

	s.AddTool(mcp.NewTool("clear_urls",
		mcp.WithDescription("Forget every captured media URL and download record."),
	), handleClearURLs(api))

	s.AddTool(mcp.NewTool("add_url",
		mcp.WithDescription("Record a media URL found by other means. The URL heuristics are skipped; data: and blob: URLs are still rejected."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The media URL to record"),
		),
		mcp.WithString("source",
			mcp.Description("Label stored with the URL (default: 'content')"),
		),
	), handleAddURL(api))

	s.AddTool(mcp.NewTool("export_json",
		mcp.WithDescription("Export the captured URLs with timestamps and metadata as a JSON document."),
	), handleExportJSON(api))

	s.AddTool(mcp.NewTool("capture_page",
		mcp.WithDescription("Open a web page, watch its network traffic, downloads and DOM for media, and return the media URLs found during that visit. Uses a fast static fetch first and escalates to a headless browser."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page to capture"),
		),
		mcp.WithString("engine",
			mcp.Description("'auto' (default): static fetch first, then the browser; 'http': static fetch only; 'browser': headless browser only"),
			mcp.Enum("auto", "http", "browser"),
		),
		mcp.WithNumber("observe_ms",
			mcp.Description("How long to watch the loaded page for late media requests, in milliseconds"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Capture timeout in seconds (default: server setting)"),
		),
		mcp.WithBoolean("stealth",
			mcp.Description("Inject anti-bot-detection evasions"),
		),
	), handleCapturePage(api))

	return s
}
