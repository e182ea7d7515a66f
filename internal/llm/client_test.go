package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[ISSUE 1]"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:     srv.URL + "/v1/",
		Model:       "test-model",
		APIKey:      "k",
		Temperature: 0.4,
		MaxTokens:   100,
	})

	out, err := c.Generate(context.Background(), Prompt{Purpose: PurposeErrors, System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "[ISSUE 1]", out)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
}

func TestClient_NoSystemNoKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	out, err := NewClient(Config{BaseURL: srv.URL}).Generate(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("slow down"))
			},
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
				assert.Contains(t, err.Error(), "slow down")
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "no response choices")
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "unmarshal")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewClient(Config{BaseURL: srv.URL}).Generate(context.Background(), Prompt{User: "u"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Generate(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Generate(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestsPerMinute: 1})
	_, err := c.Generate(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, Prompt{User: "u"})
	assert.Error(t, err, "second call within the minute must wait and give up with the context")
}

func TestCachedGenerator(t *testing.T) {
	store, err := cache.New(filepath.Join(t.TempDir(), "cache"), 0, true)
	require.NoError(t, err)

	var calls int
	fail := false
	next := Func(func(ctx context.Context, p Prompt) (string, error) {
		calls++
		if fail {
			return "", errors.New("boom")
		}
		return "answer:" + p.User, nil
	})

	g := NewCachedGenerator(next, "m", store, nil)
	ctx := context.Background()

	out, err := g.Generate(ctx, Prompt{System: "s", User: "a"})
	require.NoError(t, err)
	assert.Equal(t, "answer:a", out)

	out, err = g.Generate(ctx, Prompt{System: "s", User: "a"})
	require.NoError(t, err)
	assert.Equal(t, "answer:a", out)
	assert.Equal(t, 1, calls, "second call served from cache")

	fail = true
	_, err = g.Generate(ctx, Prompt{System: "s", User: "b"})
	require.Error(t, err)
	_, err = g.Generate(ctx, Prompt{System: "s", User: "b"})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "failures are not cached")
}

type recordingObserver struct {
	purposes []string
	errs     []error
}

func (r *recordingObserver) ObserveCall(purpose string, _ time.Duration, err error) {
	r.purposes = append(r.purposes, purpose)
	r.errs = append(r.errs, err)
}

func TestObserved(t *testing.T) {
	obs := &recordingObserver{}
	g := Observed(Func(func(ctx context.Context, p Prompt) (string, error) {
		if p.User == "bad" {
			return "", errors.New("nope")
		}
		return "ok", nil
	}), obs)

	_, _ = g.Generate(context.Background(), Prompt{Purpose: PurposeExplain, User: "good"})
	_, _ = g.Generate(context.Background(), Prompt{Purpose: PurposeSimplify, User: "bad"})

	assert.Equal(t, []string{PurposeExplain, PurposeSimplify}, obs.purposes)
	assert.NoError(t, obs.errs[0])
	assert.Error(t, obs.errs[1])

	base := Func(func(context.Context, Prompt) (string, error) { return "", nil })
	assert.NotNil(t, Observed(base, nil))
}
