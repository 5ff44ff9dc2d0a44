// Benchmark tool for load testing the screener evaluation endpoint.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/quotes.csv -strategy graham.json -url http://localhost:8080
//
// This tool:
//  1. Reads quote rows from a CSV file (code, name and numeric field columns,
//     plus an optional "expected" column of 1/0 labels)
//  2. Sends them in batches to POST /evaluate with the given strategy
//  3. Compares each verdict with the label when one is present
//  4. Reports the confusion matrix, latency and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// QuoteRow is one CSV row with its optional label.
type QuoteRow struct {
	Values   map[string]any
	Expected *bool
}

// EvaluateRequest is the screener API request format
type EvaluateRequest struct {
	Strategy json.RawMessage  `json:"strategy"`
	Records  []map[string]any `json:"records"`
}

// EvaluateResponse is the screener API response format
type EvaluateResponse struct {
	Matches     []bool `json:"matches"`
	Description string `json:"description"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Expected match, matched
	FalsePositives int64 // Expected miss, matched
	TrueNegatives  int64 // Expected miss, not matched
	FalseNegatives int64 // Expected match, not matched

	TotalProcessed int64
	TotalMatched   int64
	TotalLabeled   int64
	TotalErrors    int64
	TotalBatches   int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to quotes CSV file")
	strategyPath := flag.String("strategy", "", "Path to strategy JSON file")
	baseURL := flag.String("url", "http://localhost:8080", "Screener base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum rows to process (0 = all)")
	batchSize := flag.Int("batch", 200, "Records per request")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each record result")
	flag.Parse()

	if *csvPath == "" || *strategyPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/quotes.csv -strategy strategy.json [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              SCREENER BENCHMARK - Batch Evaluation            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Strategy:     %s\n", *strategyPath)
	fmt.Printf("Screener URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Batch Size:   %d\n", *batchSize)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Screener not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the screener is running:")
		fmt.Println("  go run ./cmd/screener serve")
		os.Exit(1)
	}
	fmt.Println("✓ Screener is healthy")

	strategy, err := os.ReadFile(*strategyPath)
	if err != nil || !json.Valid(strategy) {
		fmt.Printf("ERROR: Failed to read strategy: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nReading quotes from %s...\n", *csvPath)
	rows, err := readQuotesCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d rows\n", len(rows))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(rows, strategy, *baseURL, *tenantID, *workers, *batchSize, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readQuotesCSV maps every column except code, name and expected to a field.
// Numeric cells become numbers; anything else is sent as text.
func readQuotesCSV(path string, limit int) ([]QuoteRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []QuoteRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		row := QuoteRow{Values: make(map[string]any, len(header))}
		for i, col := range header {
			if i >= len(record) {
				break
			}
			cell := strings.TrimSpace(record[i])
			switch col {
			case "code", "name":
				row.Values[col] = cell
			case "expected":
				v := cell == "1" || strings.EqualFold(cell, "true")
				row.Expected = &v
			default:
				if n, err := strconv.ParseFloat(cell, 64); err == nil {
					row.Values[col] = n
				} else if cell != "" {
					row.Values[col] = cell
				}
			}
		}

		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

func runBenchmark(rows []QuoteRow, strategy []byte, baseURL, tenantID string, numWorkers, batchSize int, verbose bool) *Metrics {
	metrics := &Metrics{}
	if batchSize <= 0 {
		batchSize = 1
	}

	work := make(chan []QuoteRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for batch := range work {
				start := time.Now()
				result, err := evaluateBatch(client, baseURL, tenantID, strategy, batch)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalBatches, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: batch of %d -> %v\n", len(batch), err)
					}
					continue
				}

				for j, row := range batch {
					matched := result.Matches[j]
					atomic.AddInt64(&metrics.TotalProcessed, 1)
					if matched {
						atomic.AddInt64(&metrics.TotalMatched, 1)
					}

					status := " "
					if row.Expected != nil {
						atomic.AddInt64(&metrics.TotalLabeled, 1)
						expected := *row.Expected
						switch {
						case matched && expected:
							atomic.AddInt64(&metrics.TruePositives, 1)
						case matched && !expected:
							atomic.AddInt64(&metrics.FalsePositives, 1)
						case !matched && !expected:
							atomic.AddInt64(&metrics.TrueNegatives, 1)
						default:
							atomic.AddInt64(&metrics.FalseNegatives, 1)
						}
						status = "✓"
						if matched != expected {
							status = "✗"
						}
					}

					if verbose {
						fmt.Printf("%s %-8v | %-12v | Matched: %v\n", status, row.Values["code"], row.Values["name"], matched)
					}
				}
			}
		}()
	}

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		work <- rows[start:end]
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateBatch(client *http.Client, baseURL, tenantID string, strategy []byte, batch []QuoteRow) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		Strategy: strategy,
		Records:  make([]map[string]any, len(batch)),
	}
	for i, row := range batch {
		req.Records[i] = row.Values
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Matches) != len(batch) {
		return nil, fmt.Errorf("expected %d verdicts, got %d", len(batch), len(result.Matches))
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Matched:    %d\n", m.TotalMatched)
	fmt.Printf("   Labeled Rows:     %d\n", m.TotalLabeled)
	fmt.Printf("   Failed Batches:   %d / %d\n", m.TotalErrors, m.TotalBatches)

	if m.TotalLabeled > 0 {
		fmt.Printf("\n📈 CONFUSION MATRIX\n")
		fmt.Println("                         Screener")
		fmt.Println("                    MATCH       MISS")
		fmt.Println("              ┌──────────┬──────────┐")
		fmt.Printf("  Expected  Y │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
		fmt.Println("              ├──────────┼──────────┤")
		fmt.Printf("            N │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
		fmt.Println("              └──────────┴──────────┘")

		agree := m.TruePositives + m.TrueNegatives
		fmt.Printf("\n🎯 AGREEMENT\n")
		fmt.Printf("   Agreement:  %d / %d (%.2f%%)\n", agree, m.TotalLabeled, 100*float64(agree)/float64(m.TotalLabeled))
		if agree != m.TotalLabeled {
			fmt.Println("   ⚠️  Screener verdicts differ from the labels")
		} else {
			fmt.Println("   ✅ Every labeled row agrees")
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalBatches > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalBatches)
		fmt.Printf("   Avg Batch Latency: %.2f ms\n", avgMs)
	}
	if m.TotalProcessed > 0 {
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	fmt.Println()
}
