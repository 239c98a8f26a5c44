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
	apiURL   = flag.String("api-url", "http://localhost:8080", "serprank API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	runs     = flag.Int("runs", 3, "Number of runs per keyword for averaging")
	pages    = flag.Int("pages", 3, "Result pages per keyword")
	asins    = flag.String("asins", "B0BSHF7WHW", "Comma-separated ASINs tracked for every keyword")
	keywords = flag.String("keywords", "usbケーブル,モバイルバッテリー,ワイヤレスイヤホン", "Comma-separated keywords")
	output   = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// --- Request / Response types (mirrors models package) ---

type rankRequest struct {
	Keyword   string   `json:"keyword"`
	ASINs     []string `json:"asins"`
	Pages     int      `json:"pages"`
	EarlyStop *bool    `json:"early_stop"`
}

type rankResponse struct {
	Success      bool         `json:"success"`
	Status       string       `json:"status"`
	PagesScanned int          `json:"pages_scanned"`
	Counters     counters     `json:"counters"`
	Timing       timingInfo   `json:"timing"`
	Error        *errorDetail `json:"error,omitempty"`
}

type counters struct {
	Organic             int `json:"organic"`
	SponsoredProduct    int `json:"sponsored_product"`
	SponsoredBrand      int `json:"sponsored_brand"`
	SponsoredBrandVideo int `json:"sponsored_brand_video"`
}

type timingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run          int      `json:"run"`
	TotalMs      int64    `json:"total_ms"`
	PagesScanned int      `json:"pages_scanned"`
	Listings     int      `json:"listings"`
	Status       string   `json:"status"`
	Counters     counters `json:"counters"`
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
}

type keywordAverages struct {
	TotalMs   float64 `json:"total_ms"`
	MsPerPage float64 `json:"ms_per_page"`
	Listings  float64 `json:"listings"`
}

type keywordResult struct {
	Keyword  string           `json:"keyword"`
	Runs     []runResult      `json:"runs"`
	Blocked  int              `json:"blocked"`
	Averages *keywordAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp      string          `json:"timestamp"`
	APIURL         string          `json:"api_url"`
	RunsPerKeyword int             `json:"runs_per_keyword"`
	Pages          int             `json:"pages"`
	Results        []keywordResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== serprank Benchmark Suite ===")
	fmt.Printf("API URL:       %s\n", *apiURL)
	fmt.Printf("Runs/keyword:  %d\n", *runs)
	fmt.Printf("Pages:         %d\n", *pages)
	fmt.Printf("Output:        %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		APIURL:         *apiURL,
		RunsPerKeyword: *runs,
		Pages:          *pages,
	}

	targets := splitList(*asins)
	for _, kw := range splitList(*keywords) {
		fmt.Printf("Benchmarking %q ...\n", kw)
		kr := keywordResult{Keyword: kw}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkKeyword(kw, targets, i)
			switch {
			case rr.Success:
				fmt.Printf("OK  %dms  %d pages  %d listings\n", rr.TotalMs, rr.PagesScanned, rr.Listings)
			case rr.Status == "blocked":
				kr.Blocked++
				fmt.Printf("BLOCKED after %d pages\n", rr.PagesScanned)
			default:
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			kr.Runs = append(kr.Runs, rr)
		}

		kr.Averages = computeAverages(kr.Runs)
		report.Results = append(report.Results, kr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
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

func benchmarkKeyword(keyword string, targets []string, run int) runResult {
	rr := runResult{Run: run}

	// Scan the full budget so every run does comparable work.
	noEarlyStop := false
	bodyBytes, err := json.Marshal(rankRequest{
		Keyword:   keyword,
		ASINs:     targets,
		Pages:     *pages,
		EarlyStop: &noEarlyStop,
	})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest("POST", *apiURL+"/api/v1/rank", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var sr rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	c := sr.Counters
	rr.Success = sr.Success
	rr.Status = sr.Status
	rr.TotalMs = sr.Timing.TotalMs
	rr.PagesScanned = sr.PagesScanned
	rr.Counters = c
	rr.Listings = c.Organic + c.SponsoredProduct + c.SponsoredBrand + c.SponsoredBrandVideo

	if sr.Error != nil {
		rr.Error = sr.Error.Message
	}

	return rr
}

func computeAverages(runs []runResult) *keywordAverages {
	var successCount, pageCount int
	var avg keywordAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		pageCount += r.PagesScanned
		avg.TotalMs += float64(r.TotalMs)
		avg.Listings += float64(r.Listings)
	}

	if successCount == 0 {
		return nil
	}

	if pageCount > 0 {
		avg.MsPerPage = avg.TotalMs / float64(pageCount)
	}
	n := float64(successCount)
	avg.TotalMs /= n
	avg.Listings /= n
	return &avg
}

func printTable(results []keywordResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Keyword\tAvg Latency\tPer Page\tListings\tBlocked\n")
	fmt.Fprintf(w, "───────\t───────────\t────────\t────────\t───────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t%d/%d\n", truncate(r.Keyword, 30), r.Blocked, len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.0f\t%d/%d\n",
			truncate(r.Keyword, 30),
			int64(r.Averages.TotalMs),
			int64(r.Averages.MsPerPage),
			r.Averages.Listings,
			r.Blocked, len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
