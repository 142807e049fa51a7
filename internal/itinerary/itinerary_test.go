package itinerary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type capturedRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

func geminiServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	seen := &capturedRequest{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Body, _ = io.ReadAll(r.Body)
		seen.Path = r.URL.Path
		seen.Header = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, seen
}

func TestGeminiClient_Generate(t *testing.T) {
	ts, seen := geminiServer(t, http.StatusOK, `{
		"candidates": [{"content": {"parts": [{"text": "# Day 1"}, {"text": "\n- Louvre"}]}}]
	}`)

	g, err := NewGeminiClient(ts.URL, "key-123", "test-model")
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "plan Paris")
	require.NoError(t, err)
	assert.Equal(t, "# Day 1\n- Louvre", text)

	assert.Equal(t, "/models/test-model:generateContent", seen.Path)
	assert.Equal(t, "key-123", seen.Header.Get("x-goog-api-key"))

	var req geminiRequest
	require.NoError(t, json.Unmarshal(seen.Body, &req))
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "plan Paris", req.Contents[0].Parts[0].Text)
}

func TestGeminiClient_Failures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"http error":   {http.StatusInternalServerError, `{"error":{"code":500,"message":"boom"}}`},
		"api error":    {http.StatusOK, `{"error":{"code":429,"message":"quota"}}`},
		"bad json":     {http.StatusOK, `not json`},
		"no candidate": {http.StatusOK, `{"candidates":[]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ts, _ := geminiServer(t, tc.status, tc.body)
			g, err := NewGeminiClient(ts.URL, "k", "")
			require.NoError(t, err)

			_, err = g.Generate(context.Background(), "p")
			assert.ErrorIs(t, err, ErrGenerationFailed)
			assert.Equal(t, "Failed to generate itinerary", err.Error())
		})
	}
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient("", "", "")
	assert.Error(t, err)
}

type stubGenerator struct {
	text string
	err  error
}

func (s stubGenerator) Generate(context.Context, string) (string, error) { return s.text, s.err }

func TestDrafter(t *testing.T) {
	req := Request{Destination: "Lisbon", Days: 2, Interests: []string{"food"}}

	t.Run("generated", func(t *testing.T) {
		d, err := NewDrafter(stubGenerator{text: "# AI plan"}).Draft(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, SourceGenerated, d.Source)
		assert.Equal(t, "# AI plan", d.Markdown)
	})

	t.Run("failure substitutes fallback", func(t *testing.T) {
		d, err := NewDrafter(stubGenerator{err: ErrGenerationFailed}).Draft(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, SourceFallback, d.Source)
		assert.Contains(t, d.Markdown, "# 2 days in Lisbon")
		assert.Contains(t, d.Markdown, "## Day 2")
		assert.Contains(t, d.Markdown, "Afternoon: food")
	})

	t.Run("no generator configured", func(t *testing.T) {
		d, err := NewDrafter(nil).Draft(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, SourceFallback, d.Source)
	})

	t.Run("cancelled request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewDrafter(stubGenerator{err: ErrGenerationFailed}).Draft(ctx, req)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRequest_Prompt(t *testing.T) {
	p := Request{Destination: "Kyoto", Days: 3, Interests: []string{"temples", "tea"}}.Prompt()
	assert.True(t, strings.HasPrefix(p, "Create a 3-day travel itinerary for Kyoto"))
	assert.Contains(t, p, "temples, tea")
}

func TestHandler(t *testing.T) {
	r := gin.New()
	r.POST("/api/itineraries", Handler(NewDrafter(stubGenerator{err: ErrGenerationFailed})))

	body := `{"destination":"Oslo","days":1}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/itineraries", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var d Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, SourceFallback, d.Source)
	assert.Contains(t, d.Markdown, "Oslo")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/itineraries", strings.NewReader(`{"days":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
