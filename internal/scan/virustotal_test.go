package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the scanner sleeps, so no test waits on a real
// timer.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestScanner(baseURL string) (*VirusTotalScanner, *fakeClock) {
	s := NewVirusTotalScanner(baseURL, "test-key", 5*time.Second, 3, 2*time.Minute)
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	s.now = clk.Now
	s.sleep = func(_ context.Context, d time.Duration) error {
		clk.Advance(d)
		return nil
	}
	return s, clk
}

// vtServer fakes the two VirusTotal endpoints the scanner touches.
func vtServer(t *testing.T, analysisID string, pollFn func(call int) (int, string, Stats)) *httptest.Server {
	t.Helper()
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			assert.Equal(t, "test-key", r.Header.Get("x-apikey"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"id": analysisID, "type": "analysis"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/analyses/"+analysisID:
			calls++
			status, analysisStatus, stats := pollFn(calls)
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"attributes": map[string]any{
						"status": analysisStatus,
						"stats":  stats,
					},
				},
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestScanCleanAfterQueuedPolls(t *testing.T) {
	srv := vtServer(t, "an-1", func(call int) (int, string, Stats) {
		if call < 3 {
			return http.StatusOK, "queued", Stats{}
		}
		return http.StatusOK, "completed", Stats{Malicious: 0, Suspicious: 0}
	})
	defer srv.Close()

	s, _ := newTestScanner(srv.URL)
	res, err := s.Scan(context.Background(), "photo.png", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, VerdictClean, res.Verdict)
}

func TestScanFlaggedOnMaliciousCount(t *testing.T) {
	srv := vtServer(t, "an-2", func(int) (int, string, Stats) {
		return http.StatusOK, "completed", Stats{Malicious: 1}
	})
	defer srv.Close()

	s, _ := newTestScanner(srv.URL)
	res, err := s.Scan(context.Background(), "evil.exe", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, VerdictFlagged, res.Verdict)
	assert.Equal(t, 1, res.Stats.Malicious)
}

func TestScanFlaggedOnSuspiciousCount(t *testing.T) {
	srv := vtServer(t, "an-3", func(int) (int, string, Stats) {
		return http.StatusOK, "completed", Stats{Suspicious: 2}
	})
	defer srv.Close()

	s, _ := newTestScanner(srv.URL)
	res, err := s.Scan(context.Background(), "odd.bin", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, VerdictFlagged, res.Verdict)
}

func TestScanSubmitFailureIsNotRetried(t *testing.T) {
	submits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submits++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, _ := newTestScanner(srv.URL)
	_, err := s.Scan(context.Background(), "f.txt", []byte("payload"))
	require.ErrorIs(t, err, ErrSubmit)
	assert.Equal(t, 1, submits)
}

func TestScanTimesOutAtDeadline(t *testing.T) {
	srv := vtServer(t, "an-4", func(int) (int, string, Stats) {
		return http.StatusOK, "queued", Stats{}
	})
	defer srv.Close()

	s, _ := newTestScanner(srv.URL)
	_, err := s.Scan(context.Background(), "slow.bin", []byte("payload"))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestScanTimesOutWhenRetryBudgetExhausted(t *testing.T) {
	polls := 0
	srv := vtServer(t, "an-5", func(int) (int, string, Stats) {
		polls++
		return http.StatusInternalServerError, "", Stats{}
	})
	defer srv.Close()

	s, _ := newTestScanner(srv.URL)
	s.deadline = time.Hour // budget, not the deadline, must trip first
	_, err := s.Scan(context.Background(), "f.txt", []byte("payload"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, s.pollRetries+1, polls)
}

func TestScanStopsPromptlyOnCancellation(t *testing.T) {
	srv := vtServer(t, "an-6", func(int) (int, string, Stats) {
		return http.StatusOK, "queued", Stats{}
	})
	defer srv.Close()

	s := NewVirusTotalScanner(srv.URL, "test-key", 50*time.Millisecond, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, "f.txt", []byte("payload"))
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not stop after cancellation")
	}
}

func TestVerdictForCombinesCounts(t *testing.T) {
	cases := []struct {
		stats Stats
		want  Verdict
	}{
		{Stats{0, 0}, VerdictClean},
		{Stats{1, 0}, VerdictFlagged},
		{Stats{0, 1}, VerdictFlagged},
		{Stats{3, 2}, VerdictFlagged},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("m%d_s%d", tc.stats.Malicious, tc.stats.Suspicious), func(t *testing.T) {
			assert.Equal(t, tc.want, verdictFor(tc.stats))
		})
	}
}

func TestHashPayloadIsStable(t *testing.T) {
	a := HashPayload([]byte("same bytes"))
	b := HashPayload([]byte("same bytes"))
	c := HashPayload([]byte("other bytes"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
