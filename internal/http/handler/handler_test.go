package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/clicklink/internal/app/apperr"
	"github.com/sifan077/clicklink/internal/app/model"
	"github.com/sifan077/clicklink/internal/app/repository"
	"github.com/sifan077/clicklink/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAllocator struct {
	allocation *service.Allocation
	err        error
	gotURL     string
}

func (a *stubAllocator) Allocate(ctx context.Context, originalURL string) (*service.Allocation, error) {
	a.gotURL = originalURL
	if a.err != nil {
		return nil, a.err
	}
	if a.allocation != nil {
		return a.allocation, nil
	}
	if originalURL == "" {
		return nil, service.ErrEmptyURL
	}
	return &service.Allocation{
		OriginalURL: originalURL,
		ShortCode:   "abc123",
		ShortURL:    a.ShortURL("abc123"),
	}, nil
}

func (a *stubAllocator) ShortURL(code string) string {
	return "http://localhost:8080/" + code
}

type stubResolver struct {
	targets map[string]string
	err     error
}

func (r *stubResolver) Resolve(ctx context.Context, code string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	target, ok := r.targets[code]
	if !ok {
		return "", repository.ErrLinkNotFound
	}
	return target, nil
}

type recordingClicks struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingClicks) RecordVisit(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

// stalledJetStream blocks every publish until release is closed, then fails.
type stalledJetStream struct {
	release chan struct{}
}

func (s *stalledJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	<-s.release
	return nil, nats.ErrNoResponders
}

// heldJetStream holds every publish until release is closed and records the
// short code each one carried.
type heldJetStream struct {
	release chan struct{}
	mu      sync.Mutex
	codes   map[string]int
}

func (h *heldJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	<-h.release
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.codes[event.ShortCode]++
	return &nats.PubAck{Stream: model.ClickStreamName}, nil
}

func newAPIApp(alloc Allocator, links service.LinkService) *fiber.App {
	app := fiber.New()
	NewAPIHandler(APIDeps{Allocator: alloc, LinkService: links}).Register(app)
	return app
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestCreateLink(t *testing.T) {
	alloc := &stubAllocator{}
	app := newAPIApp(alloc, service.NewLinkService(repository.NewMemoryStore()))

	req := httptest.NewRequest(http.MethodPost, "/api/links", strings.NewReader(`{"url":"https://example.com/a/b/c"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{
		"originalUrl": "https://example.com/a/b/c",
		"shortCode":   "abc123",
		"shortUrl":    "http://localhost:8080/abc123",
	}, body)
	assert.Equal(t, "https://example.com/a/b/c", alloc.gotURL)
}

func TestCreateLink_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		kind   apperr.Kind
	}{
		{name: "invalid json", body: `{"url":`, status: http.StatusBadRequest, kind: apperr.KindInvalidInput},
		{name: "empty url", body: `{"url":""}`, status: http.StatusBadRequest, kind: apperr.KindInvalidInput},
		{name: "exhausted", body: `{"url":"https://example.com"}`, err: service.ErrAllocationExhausted, status: http.StatusInternalServerError, kind: apperr.KindAllocationExhausted},
		{name: "store down", body: `{"url":"https://example.com"}`, err: repository.ErrStoreUnavailable, status: http.StatusInternalServerError, kind: apperr.KindStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAPIApp(&stubAllocator{err: tt.err}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/links", strings.NewReader(tt.body))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, tt.status, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func seedLinks(t *testing.T) repository.Store {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	for i, code := range []string{"aaaaaa", "bbbbbb", "cccccc"} {
		_, err := store.ConditionalPut(ctx, &model.Link{Code: code, URL: "https://example.com/" + code, CreatedAt: int64(1700000000 + i)})
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := store.Increment(ctx, "bbbbbb", model.FieldVisitCount, 1)
		require.NoError(t, err)
	}
	_, err := store.Increment(ctx, "aaaaaa", model.FieldVisitCount, 1)
	require.NoError(t, err)
	return store
}

type listBody struct {
	Links []LinkResponse `json:"links"`
	Count int            `json:"count"`
}

func TestListAndTopLinks(t *testing.T) {
	app := newAPIApp(&stubAllocator{}, service.NewLinkService(seedLinks(t)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/links?limit=2", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recent listBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recent))
	require.Equal(t, 2, recent.Count)
	assert.Equal(t, "cccccc", recent.Links[0].ShortCode)
	assert.Equal(t, "bbbbbb", recent.Links[1].ShortCode)
	assert.Equal(t, "http://localhost:8080/cccccc", recent.Links[0].ShortURL)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/stats/top-links", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var top listBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&top))
	require.Equal(t, 3, top.Count)
	assert.Equal(t, "bbbbbb", top.Links[0].ShortCode)
	assert.Equal(t, int64(3), top.Links[0].VisitCount)
	assert.Equal(t, "aaaaaa", top.Links[1].ShortCode)
}

func TestGetLink(t *testing.T) {
	app := newAPIApp(&stubAllocator{}, service.NewLinkService(seedLinks(t)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/links/bbbbbb", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var link LinkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&link))
	assert.Equal(t, "https://example.com/bbbbbb", link.OriginalURL)
	assert.Equal(t, int64(3), link.VisitCount)
	assert.Equal(t, int64(1700000001), link.CreatedAt.Unix())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/links/nope00", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.KindNotFound, decodeError(t, resp).Kind)
}

func TestSummary(t *testing.T) {
	app := newAPIApp(&stubAllocator{}, service.NewLinkService(seedLinks(t)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/stats/summary", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		TotalLinks  int64  `json:"total_links"`
		TotalVisits int64  `json:"total_visits"`
		Timestamp   string `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(3), body.TotalLinks)
	assert.Equal(t, int64(4), body.TotalVisits)
	assert.NotEmpty(t, body.Timestamp)
}

func TestHourlyTrends(t *testing.T) {
	app := newAPIApp(&stubAllocator{}, service.NewLinkService(seedLinks(t)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/stats/hourly-trends", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body HourlyTrendsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Labels, 24)
	require.Len(t, body.Data, 24)
	assert.Equal(t, "0:00", body.Labels[0])
	assert.Equal(t, "23:00", body.Labels[23])

	// seedLinks creates every link at 2023-11-14 22:13 UTC.
	assert.Equal(t, int64(3), body.Data[22])
	var total int64
	for _, n := range body.Data {
		total += n
	}
	assert.Equal(t, int64(3), total)
}

func newRedirectApp(resolver Resolver, clicks VisitRecorder) *fiber.App {
	app := fiber.New()
	NewRedirectHandler(RedirectDeps{Resolver: resolver, Clicks: clicks}).Register(app)
	return app
}

func TestRedirect(t *testing.T) {
	clicks := &recordingClicks{}
	app := newRedirectApp(&stubResolver{targets: map[string]string{"abc123": "https://example.com/a/b/c"}}, clicks)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/abc123", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "https://example.com/a/b/c", resp.Header.Get(fiber.HeaderLocation))
	assert.Equal(t, "no-cache", resp.Header.Get(fiber.HeaderCacheControl))
	assert.Equal(t, []string{"abc123"}, clicks.codes)
}

func TestRedirect_Errors(t *testing.T) {
	tests := []struct {
		name     string
		resolver *stubResolver
		status   int
		kind     apperr.Kind
	}{
		{name: "unknown", resolver: &stubResolver{}, status: http.StatusNotFound, kind: apperr.KindNotFound},
		{name: "store down", resolver: &stubResolver{err: repository.ErrStoreUnavailable}, status: http.StatusInternalServerError, kind: apperr.KindStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clicks := &recordingClicks{}
			app := newRedirectApp(tt.resolver, clicks)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/abc123", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, decodeError(t, resp).Kind)
			assert.Empty(t, clicks.codes, "failed lookups are not visits")
		})
	}
}

func TestRedirect_IndependentOfQueue(t *testing.T) {
	js := &stalledJetStream{release: make(chan struct{})}
	publisher := service.NewClickPublisher(service.ClickPublisherDeps{JS: js})

	app := newRedirectApp(&stubResolver{targets: map[string]string{"abc123": "https://example.com"}}, publisher)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/abc123", nil), 1000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "https://example.com", resp.Header.Get(fiber.HeaderLocation))

	close(js.release)
	publisher.Wait()
}

func TestRedirect_PublishesEachRequestsCode(t *testing.T) {
	js := &heldJetStream{release: make(chan struct{}), codes: map[string]int{}}
	publisher := service.NewClickPublisher(service.ClickPublisherDeps{JS: js})

	app := newRedirectApp(&stubResolver{targets: map[string]string{
		"abc123": "https://example.com/a",
		"zzzzzz": "https://example.com/z",
	}}, publisher)

	const rounds = 50
	for i := 0; i < rounds; i++ {
		for _, code := range []string{"abc123", "zzzzzz"} {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+code, nil))
			require.NoError(t, err)
			require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
		}
	}

	// Every publish is still parked, so the request buffers have been reused
	// by the time the events are encoded.
	close(js.release)
	publisher.Wait()

	assert.Equal(t, map[string]int{"abc123": rounds, "zzzzzz": rounds}, js.codes)
}

func TestHealth(t *testing.T) {
	app := newRedirectApp(&stubResolver{}, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"ok"`)
}
