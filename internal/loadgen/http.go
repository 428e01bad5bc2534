package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTP status code constants.
const (
	statusOK       = 200
	statusCreated  = 201
	statusAccepted = 202
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// createProjects registers the requested number of projects.
func createProjects(ctx context.Context, config *Config, stats *Stats) ([]Project, error) {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/api/projects"

	projects := make([]Project, 0, config.Projects)
	for i := 0; i < config.Projects; i++ {
		body := map[string]interface{}{
			"name":            fmt.Sprintf("loadgen-%d-%d", time.Now().Unix(), i),
			"max_event_count": config.MaxEventCount,
		}
		resp, err := client.Post(ctx, url, body)
		if err != nil {
			return nil, fmt.Errorf("create project %d: %w", i, err)
		}
		data, err := readResponseBody(resp)
		if err != nil {
			return nil, fmt.Errorf("read project response: %w", err)
		}
		if resp.StatusCode != statusCreated {
			return nil, fmt.Errorf("create project %d: HTTP %d: %s", i, resp.StatusCode, string(data))
		}
		var p Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse project response: %w", err)
		}
		projects = append(projects, p)
	}

	stats.ProjectsCreated = len(projects)
	log.Printf("created %d projects with quota %d", len(projects), config.MaxEventCount)
	return projects, nil
}

// fetchProjectStats retrieves stats for one project.
func fetchProjectStats(ctx context.Context, client *HTTPClient, baseURL, projectID string) (ProjectStats, error) {
	url := fmt.Sprintf("%s/api/projects/%s/stats", baseURL, projectID)

	resp, err := client.Get(ctx, url)
	if err != nil {
		return ProjectStats{}, fmt.Errorf("request failed: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return ProjectStats{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != statusOK {
		return ProjectStats{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var stats ProjectStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return ProjectStats{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return stats, nil
}

// submitEvents submits events concurrently using a worker pool.
func submitEvents(ctx context.Context, config *Config, events []Event, stats *Stats) error {
	log.Printf("submitting %d events with %d workers...", len(events), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/api/events"

	var (
		successful int64
		duplicate  int64
		failed     int64
		submitted  int64
	)

	eventChan := make(chan Event, config.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for event := range eventChan {
				select {
				case <-ctx.Done():
					return
				default:
					result := submitSingleEvent(ctx, client, url, event)

					atomic.AddInt64(&submitted, 1)
					switch result {
					case "success":
						atomic.AddInt64(&successful, 1)
					case "duplicate":
						atomic.AddInt64(&duplicate, 1)
					case "failed":
						atomic.AddInt64(&failed, 1)
					}

					if config.Verbose && atomic.LoadInt64(&submitted)%1000 == 0 {
						log.Printf("progress: %d/%d submitted (success: %d, duplicate: %d, failed: %d)",
							atomic.LoadInt64(&submitted), len(events),
							atomic.LoadInt64(&successful), atomic.LoadInt64(&duplicate), atomic.LoadInt64(&failed))
					}
				}
			}
		}()
	}

	go func() {
		defer close(eventChan)
		for _, event := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- event:
			}
		}
	}()

	wg.Wait()

	stats.EventsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.EventsSuccessful = int(atomic.LoadInt64(&successful))
	stats.EventsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.EventsFailed = int(atomic.LoadInt64(&failed))

	log.Printf("event submission completed: success %d, duplicate %d, failed %d",
		stats.EventsSuccessful, stats.EventsDuplicate, stats.EventsFailed)

	return nil
}

// submitSingleEvent submits a single event and returns the result.
// A 429 is retried a few times with backoff before counting as failed.
func submitSingleEvent(ctx context.Context, client *HTTPClient, url string, event Event) string {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := client.Post(ctx, url, event)
		if err != nil {
			return "failed"
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return "failed"
		}

		switch resp.StatusCode {
		case statusAccepted:
			return "success"
		case statusOK:
			var ack AckResponse
			if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
				return "duplicate"
			}
			return "duplicate"
		case http.StatusTooManyRequests:
			select {
			case <-ctx.Done():
				return "failed"
			case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
			}
		default:
			return "failed"
		}
	}
	return "failed"
}
