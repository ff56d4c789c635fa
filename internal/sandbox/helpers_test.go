package sandbox_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneprompteu/oneprompt/internal/artifact"
)

func TestBindIdentity(t *testing.T) {
	s := newSandbox(t)
	s.BindIdentity("sess-1", "run-1")

	val, err := run(t, s, `_session_id + ":" + _run_id`)
	assert.NoError(t, err)
	assert.Equal(t, "sess-1:run-1", val.String())
}

func TestArtifactHelpers(t *testing.T) {
	var uploadedPath string
	var uploadedBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			switch r.URL.Path {
			case "/artifacts/sess-1/data.csv":
				w.Write([]byte("x\n1\n2\n"))
			case "/artifacts/sess-1/config.json":
				w.Write([]byte(`{"threshold": 5}`))
			default:
				http.NotFound(w, r)
			}
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			uploadedPath = r.URL.Path
			uploadedBody = string(body)
			w.Write([]byte(`{"status":"stored"}`))
		}
	}))
	defer srv.Close()

	client, err := artifact.New(artifact.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	s := newSandbox(t)
	s.BindArtifactHelpers(context.Background(), client, "sess-1", "run-1")

	t.Run("fetch_artifact_csv", func(t *testing.T) {
		val, err := run(t, s, `fetch_artifact_csv("data.csv").numRows()`)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), val.ToInteger())
	})

	t.Run("fetch_artifact_json", func(t *testing.T) {
		val, err := run(t, s, `fetch_artifact_json("config.json").threshold`)
		assert.NoError(t, err)
		assert.Equal(t, int64(5), val.ToInteger())
	})

	t.Run("fetch_artifact raw bytes", func(t *testing.T) {
		val, err := run(t, s, `new Uint8Array(fetch_artifact("data.csv")).length`)
		assert.NoError(t, err)
		assert.Equal(t, int64(len("x\n1\n2\n")), val.ToInteger())
	})

	t.Run("missing artifact throws", func(t *testing.T) {
		_, err := run(t, s, `fetch_artifact("absent.bin")`)
		assert.Error(t, err)
	})

	t.Run("upload path is canonicalised", func(t *testing.T) {
		val, err := run(t, s, `upload_artifact("out.txt", "payload", "text/plain").canonical_path`)
		assert.NoError(t, err)
		assert.Equal(t, "runs/run-1/results/out.txt", val.String())
		assert.Equal(t, "/artifacts/sess-1/runs/run-1/results/out.txt", uploadedPath)
		assert.Equal(t, "payload", uploadedBody)
	})

	t.Run("explicit runs path kept", func(t *testing.T) {
		val, err := run(t, s, `upload_artifact("runs/other/file.txt", "x", "").canonical_path`)
		assert.NoError(t, err)
		assert.Equal(t, "runs/other/file.txt", val.String())
	})

	t.Run("upload_dataframe csv", func(t *testing.T) {
		_, err := run(t, s, `upload_dataframe("table.csv", df.fromCSV("a\n1\n"), "csv")`)
		assert.NoError(t, err)
		assert.Equal(t, "a\n1\n", uploadedBody)
	})

	t.Run("upload_dataframe rejects unknown format", func(t *testing.T) {
		_, err := run(t, s, `upload_dataframe("t.bin", df.fromCSV("a\n1\n"), "parquet")`)
		assert.Error(t, err)
	})
}

func TestArtifactHelpers_NoRunID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := artifact.New(artifact.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	s := newSandbox(t)
	s.BindArtifactHelpers(context.Background(), client, "sess-1", "")

	_, err = run(t, s, `upload_artifact("out.txt", "x", "")`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no run id")
}
