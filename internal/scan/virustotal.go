package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// analysisStatusCompleted is the only terminal status the API reports; both
// "queued" and "in-progress" mean the analysis is still running.
const analysisStatusCompleted = "completed"

// VirusTotalScanner implements Scanner against the VirusTotal API v3.
//
// Lifecycle per submission: submit the payload, obtain an analysis id, then
// poll GET /analyses/{id} every PollInterval until the status is "completed".
// Poll failures consume a retry budget with doubling backoff; the whole scan
// is additionally bounded by Deadline regardless of remaining budget.
type VirusTotalScanner struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollRetries  int
	deadline     time.Duration

	// Injected for tests so polling never waits on a real clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewVirusTotalScanner creates a scanner for the given API endpoint and key.
func NewVirusTotalScanner(baseURL, apiKey string, pollInterval time.Duration, pollRetries int, deadline time.Duration) *VirusTotalScanner {
	return &VirusTotalScanner{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		pollRetries:  pollRetries,
		deadline:     deadline,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type submitResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type analysisResponse struct {
	Data struct {
		Attributes struct {
			Status string `json:"status"`
			Stats  Stats  `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Scan submits data and polls the resulting analysis to a terminal verdict.
func (s *VirusTotalScanner) Scan(ctx context.Context, filename string, data []byte) (Result, error) {
	analysisID, err := s.submit(ctx, filename, data)
	if err != nil {
		return Result{}, err
	}
	return s.poll(ctx, analysisID)
}

// submit uploads the payload and returns the opaque analysis id.
func (s *VirusTotalScanner) submit(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: build form: %v", ErrSubmit, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("%w: write form: %v", ErrSubmit, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: close form: %v", ErrSubmit, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrSubmit, err)
	}
	req.Header.Set("x-apikey", s.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrSubmit, resp.StatusCode)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSubmit, err)
	}
	if sr.Data.ID == "" {
		return "", fmt.Errorf("%w: response carried no analysis id", ErrSubmit)
	}
	return sr.Data.ID, nil
}

// poll fetches the analysis status until it completes. Failed polls consume
// the retry budget with doubling backoff; the deadline caps the whole wait.
func (s *VirusTotalScanner) poll(ctx context.Context, analysisID string) (Result, error) {
	deadline := s.now().Add(s.deadline)
	failures := 0
	backoff := s.pollInterval

	for {
		if s.now().After(deadline) {
			return Result{}, ErrTimeout
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return Result{}, err
		}

		status, stats, err := s.fetchAnalysis(ctx, analysisID)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			failures++
			if failures > s.pollRetries {
				return Result{}, fmt.Errorf("%w: %d consecutive poll failures", ErrTimeout, failures)
			}
			backoff *= 2
			if err := s.sleep(ctx, backoff); err != nil {
				return Result{}, err
			}
			continue
		}
		failures = 0
		backoff = s.pollInterval

		if status != analysisStatusCompleted {
			continue
		}

		return Result{Verdict: verdictFor(stats), Stats: stats}, nil
	}
}

// fetchAnalysis performs one status poll.
func (s *VirusTotalScanner) fetchAnalysis(ctx context.Context, analysisID string) (string, Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/analyses/"+analysisID, nil)
	if err != nil {
		return "", Stats{}, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("x-apikey", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", Stats{}, fmt.Errorf("poll analysis: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", Stats{}, fmt.Errorf("poll analysis: unexpected status %d", resp.StatusCode)
	}

	var ar analysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", Stats{}, fmt.Errorf("decode analysis response: %w", err)
	}
	return ar.Data.Attributes.Status, ar.Data.Attributes.Stats, nil
}
