package main

import (
	"crypto/tls"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// counters are shared by every load goroutine.
type counters struct {
	requests  int64
	successes int64
	errors4xx int64
	errors5xx int64
}

func (c *counters) record(status int) {
	atomic.AddInt64(&c.requests, 1)
	switch {
	case status >= 200 && status < 400:
		atomic.AddInt64(&c.successes, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&c.errors4xx, 1)
	case status >= 500:
		atomic.AddInt64(&c.errors5xx, 1)
	}
}

// newSessionClient keeps the session cookie and stops at redirects so
// they are counted as responses of their own.
func newSessionClient(insecure bool) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 10 * time.Second,
	}
}

func signup(client *http.Client, server, username string) error {
	resp, err := client.PostForm(server+"/signup", url.Values{"username": {username}, "password": {"load-test"}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusSeeOther {
		return fmt.Errorf("signup %s: status %d", username, resp.StatusCode)
	}
	return nil
}

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var readRatio int
	var insecure bool

	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.IntVar(&readRatio, "reads", 4, "recent-post views per new post")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flag.Parse()

	// --- Create one logged-in user per goroutine ---
	fmt.Printf("Creating %d users...\n", concurrency)
	clients := make([]*http.Client, concurrency)
	for i := 0; i < concurrency; i++ {
		clients[i] = newSessionClient(insecure)
		if err := signup(clients[i], server, fmt.Sprintf("load-user-%d-%d", i, time.Now().UnixNano())); err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
	}
	fmt.Println("Users created.")

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup
	var stats counters

	latencySlices := make([][]float64, concurrency) // each goroutine records latencies

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			client := clients[idx]
			var localLatencies []float64

			for n := 0; time.Now().Before(stopTime); n++ {
				var req *http.Request
				if n%(readRatio+1) == 0 {
					form := url.Values{
						"title":   {fmt.Sprintf("load test post %d", time.Now().UnixNano())},
						"content": {"generated by http_load"},
					}
					req, _ = http.NewRequest(http.MethodPost, server+"/new", strings.NewReader(form.Encode()))
					req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				} else {
					req, _ = http.NewRequest(http.MethodGet, server+"/view/recent/10", nil)
				}

				start := time.Now()
				resp, err := client.Do(req)
				lat := time.Since(start).Seconds() * 1000 // latency in ms
				localLatencies = append(localLatencies, lat)

				if err != nil {
					atomic.AddInt64(&stats.requests, 1)
					fmt.Printf("Request error: %v\n", err)
					continue
				}
				stats.record(resp.StatusCode)
				if resp.StatusCode >= 400 {
					bodyBytes, _ := io.ReadAll(resp.Body)
					fmt.Printf("Status %d: %s\n", resp.StatusCode, string(bodyBytes))
				} else {
					io.Copy(io.Discard, resp.Body)
				}
				resp.Body.Close()
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	// --- Merge all latencies ---
	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}
	sort.Float64s(allLatencies)

	// --- Compute statistics ---
	trimmedMeanVal := trimmedMean(allLatencies, trimPercent)
	p50 := percentile(allLatencies, 50)
	p90 := percentile(allLatencies, 90)
	p99 := percentile(allLatencies, 99)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", stats.requests, stats.successes, stats.errors4xx, stats.errors5xx)
	fmt.Printf("Latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n", trimmedMeanVal, p50, p90, p99)

	// --- Save latencies to CSV ---
	f, err := os.Create(csvFile)
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms"})
	for _, d := range allLatencies {
		w.Write([]string{fmt.Sprintf("%.3f", d)})
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// trimmedMean calculates mean latency after trimming top/bottom trimPercent values
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = (len(data) - 1) / 2
	}
	trimmed := data[trim : len(data)-trim]
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile calculates the p-th percentile from sorted data
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
