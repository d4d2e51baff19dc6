package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/casegest/internal/document"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recorded
	status   int
}

func (f *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		auth:   r.Header.Get("Authorization"),
		body:   body,
	})
	status := f.status
	f.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte("boom"))
}

func (f *fakeServer) byPath() map[string]recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]recorded, len(f.requests))
	for _, r := range f.requests {
		out[r.path] = r
	}
	return out
}

func newFake(t *testing.T, status int) (*fakeServer, *Client) {
	t.Helper()
	f := &fakeServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "secret", 5*time.Second)
	t.Cleanup(c.Close)
	return f, c
}

func TestPutNode_SendsBodyAndAuth(t *testing.T) {
	f, c := newFake(t, http.StatusCreated)

	err := c.PutNode(context.Background(), "cases/a/meta", NodeRequest{Value: map[string]any{"k": "v"}, Salience: 0.5})
	require.NoError(t, err)

	got := f.byPath()["/kv/cases/a/meta"]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "Bearer secret", got.auth)
	var body NodeRequest
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, 0.5, body.Salience)
	assert.Equal(t, map[string]any{"k": "v"}, body.Value)
}

func TestClient_RetryableStatus(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		_, c := newFake(t, status)
		err := c.PutNode(context.Background(), "k", NodeRequest{Value: 1})
		require.Error(t, err)
		assert.True(t, IsRetryable(err), "status %d", status)

		var re *RetryableError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, status, re.StatusCode)
	}
}

func TestClient_ClientErrorNotRetryable(t *testing.T) {
	_, c := newFake(t, http.StatusBadRequest)
	err := c.PutLink(context.Background(), LinkRequest{From: "a", To: "b"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "status 400")
}

func TestClient_TransportErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", time.Second)
	err := c.PutNode(context.Background(), "k", NodeRequest{Value: 1})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_CanceledContextNotRetryable(t *testing.T) {
	_, c := newFake(t, http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.PutNode(ctx, "k", NodeRequest{Value: 1})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeleteNode_MissingIsOK(t *testing.T) {
	f, c := newFake(t, http.StatusNotFound)
	require.NoError(t, c.DeleteNode(context.Background(), "cases/x", true))
	assert.Equal(t, "children=true", f.byPath()["/kv/cases/x"].query)
}

func TestDocumentPrefix(t *testing.T) {
	assert.Equal(t, "cases/12-cv-3456/documents/d1", DocumentPrefix("12-CV-3456", "d1"))
	assert.Equal(t, "cases/uncategorized/documents/d1", DocumentPrefix("", "d1"))
}

func sampleResult() *document.ProcessedDocument {
	at := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return &document.ProcessedDocument{
		ID: "d1",
		Entities: []document.Entity{
			{Text: "01/15/2024", Type: "date", Position: document.Position{Start: 0, End: 10}, Confidence: 0.8},
			{Text: "12-CV-3456", Type: "caseNumber", Position: document.Position{Start: 20, End: 30}, Confidence: 0.8},
			{Text: "12-CV-9999", Type: "caseNumber", Position: document.Position{Start: 40, End: 50}, Confidence: 0.8},
		},
		TimelineEvents: []document.TimelineEvent{
			{Date: at, Description: "filed", DocumentID: "d1", Confidence: 0.64},
		},
		CrossReferences: []document.CrossReference{
			{SourceDocID: "d1", TargetDocID: "d2", SourceText: "12-CV-3456", TargetText: "12-CV-3456", Type: "caseNumber", Confidence: 0.8},
		},
		Metadata: document.ProcessMetadata{
			ProcessingDate:   at,
			ProcessingStatus: document.StatusCompleted,
			Confidence:       0.75,
		},
	}
}

func TestExportAnalysis_WritesNodesAndLinks(t *testing.T) {
	f, c := newFake(t, http.StatusOK)
	e := NewExporter(c, 2)

	err := e.ExportAnalysis(context.Background(), ExportRequest{
		CaseNumber: "12-CV-3456",
		Title:      "Motion",
		Type:       "motion",
		Result:     sampleResult(),
	})
	require.NoError(t, err)

	reqs := f.byPath()
	prefix := "/kv/cases/12-cv-3456/documents/d1"
	require.Contains(t, reqs, prefix+"/meta")
	require.Contains(t, reqs, prefix+"/entities/date")
	require.Contains(t, reqs, prefix+"/entities/casenumber")
	require.Contains(t, reqs, prefix+"/timeline/0000")
	require.Contains(t, reqs, "/links")
	assert.Len(t, reqs, 5)

	var meta NodeRequest
	require.NoError(t, json.Unmarshal(reqs[prefix+"/meta"].body, &meta))
	assert.Equal(t, "casegest:d1", meta.Source)
	fields := meta.Value.(map[string]any)
	assert.Equal(t, "completed", fields["status"])
	assert.Equal(t, "2024-01-15T00:00:00Z", fields["processed_at"])

	var ents NodeRequest
	require.NoError(t, json.Unmarshal(reqs[prefix+"/entities/casenumber"].body, &ents))
	assert.Len(t, ents.Value, 2)

	var link LinkRequest
	require.NoError(t, json.Unmarshal(reqs["/links"].body, &link))
	assert.Equal(t, "cases/12-cv-3456/documents/d1/meta", link.From)
	assert.Equal(t, "cases/12-cv-3456/documents/d2/meta", link.To)
	assert.Equal(t, 0.8, link.Weight)
	assert.True(t, link.Bidirectional)
	assert.True(t, strings.HasPrefix(link.Summary, "caseNumber:"))
}

func TestExportAnalysis_PropagatesRetryable(t *testing.T) {
	_, c := newFake(t, http.StatusServiceUnavailable)
	e := NewExporter(c, 1)

	err := e.ExportAnalysis(context.Background(), ExportRequest{Result: sampleResult()})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestExportAnalysis_NilResult(t *testing.T) {
	_, c := newFake(t, http.StatusOK)
	assert.Error(t, NewExporter(c, 1).ExportAnalysis(context.Background(), ExportRequest{}))
}

func TestDeleteDocument(t *testing.T) {
	f, c := newFake(t, http.StatusNoContent)
	require.NoError(t, NewExporter(c, 1).DeleteDocument(context.Background(), "", "d9"))
	got := f.byPath()["/kv/cases/uncategorized/documents/d9"]
	assert.Equal(t, http.MethodDelete, got.method)
}
