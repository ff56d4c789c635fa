package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/oneprompteu/oneprompt/internal/artifact"
	"github.com/oneprompteu/oneprompt/internal/dataframe"
)

// HelperSignatures lists the artifact helper contracts, reported by the
// introspection call so the calling agent can self-correct.
var HelperSignatures = []string{
	"fetch_artifact(path) - Get raw bytes from the artifact store",
	"fetch_artifact_json(path) - Get JSON as an object or array",
	"fetch_artifact_csv(path) - Get CSV as a DataFrame",
	"upload_artifact(path, data, contentType) - Upload bytes or a string",
	"upload_dataframe(path, df, format) - Upload a DataFrame as csv or json",
}

// BindIdentity exposes the caller's scoping IDs to sandboxed code. They are
// opaque strings, useful only for logging.
func (s *Sandbox) BindIdentity(sessionID, runID string) {
	s.vm.Set("_session_id", sessionID)
	s.vm.Set("_run_id", runID)
}

// BindArtifactHelpers injects the artifact store helper functions, bound to
// the caller's session and run. The client's credential never enters the
// namespace; sandboxed code gets only these capabilities.
func (s *Sandbox) BindArtifactHelpers(ctx context.Context, client *artifact.Client, sessionID, runID string) {
	fetch := func(path string) ([]byte, error) {
		return client.Fetch(ctx, sessionID, path)
	}

	s.vm.Set("fetch_artifact", func(path string) (goja.ArrayBuffer, error) {
		data, err := fetch(path)
		if err != nil {
			return goja.ArrayBuffer{}, err
		}
		return s.vm.NewArrayBuffer(data), nil
	})

	s.vm.Set("fetch_artifact_json", func(path string) (any, error) {
		data, err := fetch(path)
		if err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("artifact: parsing %s as JSON: %w", path, err)
		}
		return value, nil
	})

	s.vm.Set("fetch_artifact_csv", func(path string) (*dataframe.DataFrame, error) {
		data, err := fetch(path)
		if err != nil {
			return nil, err
		}
		return dataframe.FromCSV(data)
	})

	upload := func(path string, data []byte, contentType string) (map[string]any, error) {
		if runID == "" {
			return nil, fmt.Errorf("artifact: no run id available, cannot determine artifact path")
		}
		canonical := canonicalPath(path, runID)
		resp, err := client.Upload(ctx, sessionID, canonical, data, contentType)
		if err != nil {
			return nil, err
		}
		resp["canonical_path"] = canonical
		resp["session_id"] = sessionID
		resp["run_id"] = runID
		return resp, nil
	}

	s.vm.Set("upload_artifact", func(path string, data goja.Value, contentType string) (map[string]any, error) {
		raw, err := exportBytes(data)
		if err != nil {
			return nil, err
		}
		return upload(path, raw, contentType)
	})

	s.vm.Set("upload_dataframe", func(path string, d *dataframe.DataFrame, format string) (map[string]any, error) {
		if format == "" {
			format = "csv"
		}
		var body string
		var contentType string
		var err error
		switch format {
		case "csv":
			body, err = d.ToCSV()
			contentType = "text/csv"
		case "json":
			body, err = d.ToJSON()
			contentType = "application/json"
		default:
			return nil, fmt.Errorf("artifact: unsupported format %q, use csv or json", format)
		}
		if err != nil {
			return nil, err
		}
		return upload(path, []byte(body), contentType)
	})
}

// canonicalPath rewrites an upload path under runs/{run}/results/ unless the
// caller already placed it under runs/.
func canonicalPath(path, runID string) string {
	clean := strings.TrimLeft(path, "/")
	if strings.HasPrefix(clean, "runs/") {
		return clean
	}
	return fmt.Sprintf("runs/%s/results/%s", runID, clean)
}

func exportBytes(v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("artifact: upload data is missing")
	}
	switch data := v.Export().(type) {
	case string:
		return []byte(data), nil
	case []byte:
		return data, nil
	case goja.ArrayBuffer:
		return data.Bytes(), nil
	default:
		return nil, fmt.Errorf("artifact: upload data must be a string or ArrayBuffer")
	}
}
