package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "mediatap API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "Number of runs per URL and engine for averaging")
	engines = flag.String("engines", "http,browser,auto", "Comma-separated engine modes to compare")
	urls    = flag.String("urls", "", "Comma-separated URLs to capture instead of the built-in set")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test pages covering the common ways media is embedded.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"No media", "https://example.com"},
	{"<video>", "https://www.w3schools.com/html/html5_video.asp"},
	{"Docs", "https://developer.mozilla.org/en-US/docs/Web/HTML/Element/video"},
	{"hls.js", "https://hls-js.netlify.app/demo/"},
	{"dash.js", "https://reference.dashif.org/dash.js/latest/samples/dash-if-reference-player/index.html"},
}

// --- Request / Response types (mirrors models package) ---

type captureRequest struct {
	URL     string `json:"url"`
	Engine  string `json:"engine"`
	Timeout int    `json:"timeout"`
}

type captureResponse struct {
	Success    bool         `json:"success"`
	StatusCode int          `json:"status_code"`
	EngineUsed string       `json:"engine_used"`
	Found      []foundURL   `json:"found"`
	NewCount   int          `json:"new_count"`
	Timing     timingInfo   `json:"timing"`
	Error      *errorDetail `json:"error,omitempty"`
}

type foundURL struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

type timingInfo struct {
	TotalMs      int64 `json:"total_ms"`
	NavigationMs int64 `json:"navigation_ms"`
	ObserveMs    int64 `json:"observe_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run          int            `json:"run"`
	TotalMs      int64          `json:"total_ms"`
	NavigationMs int64          `json:"navigation_ms"`
	ObserveMs    int64          `json:"observe_ms"`
	Found        int            `json:"found"`
	Sources      map[string]int `json:"sources,omitempty"`
	EngineUsed   string         `json:"engine_used"`
	StatusCode   int            `json:"status_code"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
}

type averages struct {
	TotalMs      float64 `json:"total_ms"`
	NavigationMs float64 `json:"navigation_ms"`
	ObserveMs    float64 `json:"observe_ms"`
	Found        float64 `json:"found"`
}

type urlResult struct {
	URL      string      `json:"url"`
	Label    string      `json:"label"`
	Engine   string      `json:"engine"`
	Runs     []runResult `json:"runs"`
	Averages *averages   `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== mediatap Benchmark Suite ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Engines:   %s\n", *engines)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure mediatap is running (mediatap serve)\n")
		os.Exit(1)
	}

	targets := testURLs
	if *urls != "" {
		targets = nil
		for _, u := range splitList(*urls) {
			targets = append(targets, struct {
				Label string
				URL   string
			}{"Custom", u})
		}
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	for _, t := range targets {
		for _, mode := range splitList(*engines) {
			fmt.Printf("Benchmarking [%s/%s] %s ...\n", t.Label, mode, t.URL)
			ur := urlResult{URL: t.URL, Label: t.Label, Engine: mode}

			for i := 1; i <= *runs; i++ {
				fmt.Printf("  Run %d/%d ... ", i, *runs)
				rr := benchmarkURL(t.URL, mode, i)
				if rr.Success {
					fmt.Printf("OK  %dms  %d found (%s)\n", rr.TotalMs, rr.Found, rr.EngineUsed)
				} else {
					fmt.Printf("FAILED: %s\n", rr.Error)
				}
				ur.Runs = append(ur.Runs, rr)
			}

			ur.Averages = computeAverages(ur.Runs)
			report.Results = append(report.Results, ur)
			fmt.Println()
		}
	}

	// Print summary table.
	printTable(report.Results)

	// Write JSON report.
	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(url, mode string, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(captureRequest{URL: url, Engine: mode, Timeout: 60})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/capture", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var cr captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = cr.Success
	rr.StatusCode = cr.StatusCode
	rr.EngineUsed = cr.EngineUsed
	rr.TotalMs = cr.Timing.TotalMs
	rr.NavigationMs = cr.Timing.NavigationMs
	rr.ObserveMs = cr.Timing.ObserveMs
	rr.Found = len(cr.Found)
	if len(cr.Found) > 0 {
		rr.Sources = make(map[string]int)
		for _, f := range cr.Found {
			rr.Sources[f.Source]++
		}
	}

	if cr.Error != nil {
		rr.Error = cr.Error.Message
	}

	return rr
}

func computeAverages(runs []runResult) *averages {
	var successCount int
	var avg averages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.NavigationMs += float64(r.NavigationMs)
		avg.ObserveMs += float64(r.ObserveMs)
		avg.Found += float64(r.Found)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.NavigationMs /= n
	avg.ObserveMs /= n
	avg.Found /= n
	return &avg
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 95))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tMode\tAvg Latency\tNav\tObserve\tFound\tWinner\n")
	fmt.Fprintf(w, "───\t────\t───────────\t───\t───────\t─────\t──────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\t%s\tFAILED\t-\t-\t-\t-\n", truncateURL(r.URL, 40), r.Engine)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%dms\t%dms\t%.1f\t%s\n",
			truncateURL(r.URL, 40),
			r.Engine,
			int64(r.Averages.TotalMs),
			int64(r.Averages.NavigationMs),
			int64(r.Averages.ObserveMs),
			r.Averages.Found,
			dominantEngine(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 95))
}

// dominantEngine returns the engine that answered most successful runs.
func dominantEngine(runs []runResult) string {
	counts := map[string]int{}
	for _, r := range runs {
		if r.Success {
			counts[r.EngineUsed]++
		}
	}
	best, bestCount := "", 0
	for name, count := range counts {
		if count > bestCount {
			best = name
			bestCount = count
		}
	}
	return best
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
