package notion

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/worklog-sync/internal/store"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeAPI struct {
	t        *testing.T
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r recordedRequest)
}

func newFakeAPI(t *testing.T, handler func(w http.ResponseWriter, r recordedRequest)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t, handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, notionVersion, r.Header.Get("Notion-Version"))

		rr := recordedRequest{Method: r.Method, Path: r.URL.Path}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &rr.Body))
		}
		api.mu.Lock()
		api.requests = append(api.requests, rr)
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		api.handler(w, rr)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("secret", ClientOptions{BaseURL: srv.URL, RateLimit: -1})
	return c, api
}

func (a *fakeAPI) Requests() []recordedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedRequest(nil), a.requests...)
}

const pageJSON = `{
	"object": "page",
	"id": "page-1",
	"properties": {
		"PK": {"id": "a", "type": "title", "title": [{"plain_text": "@Alice "}, {"plain_text": "_ @2024년 5월 1일"}]},
		"날짜": {"id": "b", "type": "date", "date": {"start": "2024-05-01"}},
		"근무시간": {"id": "c", "type": "number", "number": 3.5},
		"빈 숫자": {"id": "c2", "type": "number", "number": null},
		"프로젝트명": {"id": "d", "type": "relation", "relation": [{"id": "proj-a"}, {"id": "proj-b"}], "has_more": false},
		"업무내용": {"id": "e", "type": "rich_text", "rich_text": [{"plain_text": "one"}, {"plain_text": "two"}]},
		"정상 여부": {"id": "f", "type": "status", "status": {"name": "Done"}},
		"계산": {"id": "g", "type": "formula", "formula": {"type": "number", "number": 1}}
	}
}`

// --- Errors ---

func TestAPIError_Classes(t *testing.T) {
	tests := []struct {
		err        *APIError
		notFound   bool
		transient  bool
		validation bool
	}{
		{&APIError{Status: 404, Code: "object_not_found"}, true, false, false},
		{&APIError{Status: 429, Code: "rate_limited"}, false, true, false},
		{&APIError{Status: 409, Code: "conflict_error"}, false, true, false},
		{&APIError{Status: 502}, false, true, false},
		{&APIError{Status: 503, Code: "service_unavailable"}, false, true, false},
		{&APIError{Status: 400, Code: "validation_error"}, false, false, true},
		{&APIError{Status: 401, Code: "unauthorized"}, false, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.notFound, errors.Is(tt.err, store.ErrNotFound), tt.err.Error())
		assert.Equal(t, tt.transient, store.IsTransient(tt.err), tt.err.Error())
		assert.Equal(t, tt.validation, errors.Is(tt.err, store.ErrValidation), tt.err.Error())
	}
}

func TestRequest_ErrorBody(t *testing.T) {
	c, _ := newFakeAPI(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"object":"error","status":429,"code":"rate_limited","message":"slow down"}`)
	})

	_, err := c.GetPage(context.Background(), "page-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.Status)
	assert.Equal(t, "rate_limited", apiErr.Code)
	assert.Contains(t, err.Error(), "slow down")
	assert.True(t, store.IsTransient(err))
}

func TestRequest_NonJSONError(t *testing.T) {
	c, _ := newFakeAPI(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := c.GetPage(context.Background(), "page-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad gateway")
	assert.True(t, store.IsTransient(err))
}

// --- Store adapter ---

func TestStore_Retrieve(t *testing.T) {
	c, api := newFakeAPI(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, pageJSON)
	})

	rec, err := NewStore(c).Retrieve(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "/pages/page-1", api.Requests()[0].Path)

	pk, _ := rec.Text("PK")
	assert.Equal(t, "@Alice _ @2024년 5월 1일", pk, "segments are joined")
	hours, ok := rec.Number("근무시간")
	assert.True(t, ok)
	assert.Equal(t, 3.5, hours)
	_, ok = rec.Number("빈 숫자")
	assert.False(t, ok)
	assert.Equal(t, []string{"proj-a", "proj-b"}, rec.Relations("프로젝트명"))
	status, _ := rec.Label("정상 여부")
	assert.Equal(t, "Done", status)
	_, ok = rec.Fields["계산"]
	assert.False(t, ok, "unsupported property types are dropped")
}

func TestStore_QueryFilterAndCursor(t *testing.T) {
	c, api := newFakeAPI(t, func(w http.ResponseWriter, r recordedRequest) {
		if r.Body["start_cursor"] == nil {
			io.WriteString(w, `{"object":"list","results":[`+pageJSON+`],"has_more":true,"next_cursor":"cur-2"}`)
			return
		}
		io.WriteString(w, `{"object":"list","results":[],"has_more":false,"next_cursor":null}`)
	})

	s := NewStore(c)
	filter := store.And(
		store.Equals("이름", store.KindTitle, "Bob"),
		store.Equals("날짜", store.KindDate, "2024-05-02"),
	)
	all, err := store.QueryAll(context.Background(), s, "db-summary", filter, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, "/databases/db-summary/query", reqs[0].Path)
	assert.Equal(t, "cur-2", reqs[1].Body["start_cursor"])

	and := reqs[0].Body["filter"].(map[string]any)["and"].([]any)
	require.Len(t, and, 2)
	assert.Equal(t, map[string]any{"property": "이름", "title": map[string]any{"equals": "Bob"}}, and[0])
	assert.Equal(t, map[string]any{"property": "날짜", "date": map[string]any{"equals": "2024-05-02"}}, and[1])
}

func TestStore_CreateWritesProperties(t *testing.T) {
	c, api := newFakeAPI(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, `{"object":"page","id":"new-page","properties":{}}`)
	})

	rec, err := NewStore(c).Create(context.Background(), "db-summary", store.Fields{
		"이름":    store.Title("Alice"),
		"날짜":    store.Date("2024-05-01"),
		"총합 시간": store.Number(8),
		"업무 요약": store.RichText(strings.Repeat("a", 2000), "b"),
		"정상 여부": store.Select("✅ 정상"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-page", rec.ID)

	body := api.Requests()[0].Body
	assert.Equal(t, map[string]any{"database_id": "db-summary"}, body["parent"])

	props := body["properties"].(map[string]any)
	assert.Equal(t, 8.0, props["총합 시간"].(map[string]any)["number"])
	assert.Equal(t, map[string]any{"start": "2024-05-01"}, props["날짜"].(map[string]any)["date"])
	assert.Equal(t, map[string]any{"name": "✅ 정상"}, props["정상 여부"].(map[string]any)["select"])

	segments := props["업무 요약"].(map[string]any)["rich_text"].([]any)
	require.Len(t, segments, 2)
	first := segments[0].(map[string]any)["text"].(map[string]any)["content"].(string)
	assert.Len(t, first, 2000)
}

func TestStore_UpdateEmptyText(t *testing.T) {
	c, api := newFakeAPI(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, `{"object":"page","id":"page-9","properties":{}}`)
	})

	_, err := NewStore(c).Update(context.Background(), "page-9", store.Fields{
		"업무 요약": store.RichText(),
	})
	require.NoError(t, err)

	req := api.Requests()[0]
	assert.Equal(t, "PATCH", req.Method)
	assert.Equal(t, "/pages/page-9", req.Path)
	props := req.Body["properties"].(map[string]any)
	assert.Equal(t, []any{}, props["업무 요약"].(map[string]any)["rich_text"], "empty text clears the field")
}

func TestEncodeFilter_Unsupported(t *testing.T) {
	_, err := encodeFilter(store.And(store.Equals("n", store.KindNumber, "1")))
	assert.ErrorIs(t, err, store.ErrValidation)

	f, err := encodeFilter(nil)
	assert.NoError(t, err)
	assert.Nil(t, f)
}

// --- Schema ---

func TestCheckProperties(t *testing.T) {
	c, _ := newFakeAPI(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, `{
			"object": "database",
			"id": "db-summary",
			"title": [{"plain_text": "Daily summary"}],
			"properties": {
				"이름": {"id": "a", "name": "이름", "type": "title"},
				"날짜": {"id": "b", "name": "날짜", "type": "rich_text"},
				"정상 여부": {"id": "c", "name": "정상 여부", "type": "status"}
			}
		}`)
	})

	problems, err := c.CheckProperties(context.Background(), "db-summary", map[string]store.Kind{
		"이름":    store.KindTitle,
		"날짜":    store.KindDate,
		"정상 여부": store.KindSelect,
		"팀":     store.KindRichText,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`Daily summary: property "날짜" is rich_text, want date`,
		`Daily summary: property "정상 여부" is status, want select`,
		`Daily summary: missing property "팀"`,
	}, problems)
}
