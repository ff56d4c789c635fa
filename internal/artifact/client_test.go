package artifact_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneprompteu/oneprompt/internal/apperror"
	"github.com/oneprompteu/oneprompt/internal/artifact"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := artifact.New(artifact.Config{})
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/artifacts/sess-1/runs/r1/data.csv":
			w.Write([]byte("a,b\n1,2\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := artifact.New(artifact.Config{BaseURL: srv.URL, Token: "secret-token"})
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		data, err := client.Fetch(context.Background(), "sess-1", "runs/r1/data.csv")
		assert.NoError(t, err)
		assert.Equal(t, "a,b\n1,2\n", string(data))
	})

	t.Run("missing maps to not found", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), "sess-1", "runs/r1/missing.csv")
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
	})

	t.Run("empty session rejected", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), "", "data.csv")
		assert.Error(t, err)
	})
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/artifacts/sess-1/runs/r1/results/out.csv", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("upload"))
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "a\n1\n", string(body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"stored","size":4}`))
	}))
	defer srv.Close()

	client, err := artifact.New(artifact.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.Upload(context.Background(), "sess-1", "runs/r1/results/out.csv", []byte("a\n1\n"), "text/csv")
	assert.NoError(t, err)
	assert.Equal(t, "stored", resp["status"])
}

func TestUpload_StoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	client, err := artifact.New(artifact.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Upload(context.Background(), "sess-1", "out.bin", []byte("x"), "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "507")
}
