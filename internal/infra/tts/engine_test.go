package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-voice/internal/resilience/retry"
	"nexus-voice/internal/usecase/synthesis"
)

func drain(t *testing.T, chunks <-chan synthesis.Chunk) ([]byte, int, error) {
	t.Helper()
	var (
		buf bytes.Buffer
		n   int
	)
	for c := range chunks {
		if c.Err != nil {
			return buf.Bytes(), n, c.Err
		}
		n++
		buf.Write(c.Data)
	}
	return buf.Bytes(), n, nil
}

func TestHTTPEngine_Stream(t *testing.T) {
	// Arrange
	audio := bytes.Repeat([]byte{0xFF, 0xF3}, 1500)
	var got synthesizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/synthesize", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	}))
	defer server.Close()

	engine, err := NewHTTPEngine(DefaultConfig(server.URL+"/"), server.Client())
	require.NoError(t, err)

	// Act
	chunks, err := engine.Stream(context.Background(), "你好", "zh-CN-YunxiNeural")
	require.NoError(t, err)
	data, n, streamErr := drain(t, chunks)

	// Assert
	require.NoError(t, streamErr)
	assert.Equal(t, audio, data)
	assert.GreaterOrEqual(t, n, 3, "3000 bytes arrive in chunks of at most 1024")
	assert.Equal(t, "你好", got.Text)
	assert.Equal(t, "zh-CN-YunxiNeural", got.Voice)
	assert.Equal(t, "mp3", got.Format)
}

func TestHTTPEngine_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice service overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	engine, err := NewHTTPEngine(DefaultConfig(server.URL), server.Client())
	require.NoError(t, err)

	_, err = engine.Stream(context.Background(), "你好", "zh-CN-XiaoxiaoNeural")

	var httpErr *retry.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "voice service overloaded", httpErr.Message)
}

func TestHTTPEngine_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, err := NewHTTPEngine(DefaultConfig(server.URL), server.Client())
	require.NoError(t, err)

	chunks, err := engine.Stream(context.Background(), "你好", "zh-CN-XiaoxiaoNeural")
	require.NoError(t, err)
	data, n, streamErr := drain(t, chunks)

	assert.NoError(t, streamErr)
	assert.Empty(t, data)
	assert.Zero(t, n)
}

func TestHTTPEngine_StopsOnCancel(t *testing.T) {
	// Arrange: the server sends one chunk then stalls
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{1}, 100))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	engine, err := NewHTTPEngine(DefaultConfig(server.URL), server.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, err := engine.Stream(ctx, "你好", "zh-CN-XiaoxiaoNeural")
	require.NoError(t, err)

	// Act
	first := <-chunks
	require.NoError(t, first.Err)
	assert.Len(t, first.Data, 100)
	cancel()

	// Assert: the channel is closed promptly
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("chunk channel not closed after cancel")
		}
	}
}

func TestNewHTTPEngine_Validation(t *testing.T) {
	_, err := NewHTTPEngine(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base url")
	assert.Contains(t, err.Error(), "chunk size")

	engine, err := NewHTTPEngine(DefaultConfig("http://tts:5050"), nil)
	require.NoError(t, err)
	assert.NotNil(t, engine.httpClient)
}
