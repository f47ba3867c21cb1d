package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/matryer/is"
	"go.uber.org/zap"

	"f0oster/adsweep/archive"
)

type fakeSource struct {
	runs      []archive.Run
	accounts  []archive.ArchivedAccount
	err       error
	lastLimit int
}

func (f *fakeSource) RecentRuns(ctx context.Context, limit int) ([]archive.Run, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

func (f *fakeSource) RecentArchives(ctx context.Context, limit int) ([]archive.ArchivedAccount, error) {
	f.lastLimit = limit
	return f.accounts, f.err
}

func newTestServer(source RunSource) *Server {
	return NewServer(":0", source, zap.NewNop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	is := is.New(t)
	rec := get(t, newTestServer(&fakeSource{}), "/healthz")
	is.Equal(rec.Code, http.StatusOK)

	var health HealthResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &health))
	is.Equal(health.Status, "ok")
	is.True(health.Archive)
}

func TestHealthzWithoutArchive(t *testing.T) {
	is := is.New(t)
	rec := get(t, newTestServer(nil), "/healthz")
	is.Equal(rec.Code, http.StatusOK)

	var health HealthResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &health))
	is.True(!health.Archive)
}

func TestListRuns(t *testing.T) {
	is := is.New(t)
	started := time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC)
	source := &fakeSource{
		runs: []archive.Run{{
			ID:         uuid.New(),
			Kind:       "computer",
			StartedAt:  started,
			FinishedAt: started.Add(2 * time.Minute),
			Examined:   40,
			Disabled:   3,
			Removed:    1,
		}},
	}

	rec := get(t, newTestServer(source), "/api/runs")
	is.Equal(rec.Code, http.StatusOK)
	is.Equal(source.lastLimit, 20)

	var resp RunListResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &resp))
	is.Equal(len(resp.Runs), 1)
	is.Equal(resp.Runs[0].Kind, "computer")
	is.Equal(resp.Runs[0].Examined, 40)
}

func TestListRunsLimitParam(t *testing.T) {
	is := is.New(t)
	source := &fakeSource{}

	get(t, newTestServer(source), "/api/runs?limit=5")
	is.Equal(source.lastLimit, 5)

	// Out-of-range and junk values fall back to the default.
	get(t, newTestServer(source), "/api/runs?limit=9000")
	is.Equal(source.lastLimit, 20)
	get(t, newTestServer(source), "/api/runs?limit=banana")
	is.Equal(source.lastLimit, 20)
}

func TestListRunsWithoutSource(t *testing.T) {
	is := is.New(t)
	rec := get(t, newTestServer(nil), "/api/runs")
	is.Equal(rec.Code, http.StatusServiceUnavailable)
}

func TestListRunsSourceError(t *testing.T) {
	is := is.New(t)
	rec := get(t, newTestServer(&fakeSource{err: context.DeadlineExceeded}), "/api/runs")
	is.Equal(rec.Code, http.StatusInternalServerError)

	var body map[string]string
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &body))
	is.True(body["error"] != "")
}

func TestListRunsEmpty(t *testing.T) {
	is := is.New(t)
	rec := get(t, newTestServer(&fakeSource{}), "/api/runs")
	is.Equal(rec.Code, http.StatusOK)

	// A nil slice from the store still serializes as an empty array.
	var raw map[string]json.RawMessage
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &raw))
	is.Equal(string(raw["runs"]), "[]")
}

func TestListArchive(t *testing.T) {
	is := is.New(t)
	source := &fakeSource{
		accounts: []archive.ArchivedAccount{{
			ID:         uuid.New(),
			Kind:       "user",
			Name:       "jdoe",
			DN:         "CN=jdoe,OU=Staff,DC=corp,DC=example,DC=com",
			Attributes: map[string][]string{"mail": {"jdoe@corp.example.com"}},
			ArchivedAt: time.Date(2024, 5, 10, 3, 1, 0, 0, time.UTC),
		}},
	}

	rec := get(t, newTestServer(source), "/api/archive?limit=10")
	is.Equal(rec.Code, http.StatusOK)
	is.Equal(source.lastLimit, 10)

	var resp ArchiveListResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &resp))
	is.Equal(len(resp.Accounts), 1)
	is.Equal(resp.Accounts[0].Name, "jdoe")
	is.Equal(resp.Accounts[0].Attributes["mail"], []string{"jdoe@corp.example.com"})
}

func TestServerShutsDownOnCancel(t *testing.T) {
	is := is.New(t)
	s := NewServer("127.0.0.1:0", nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		is.NoErr(err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
