package server

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/oneprompteu/oneprompt/internal/engine"
)

// runCodeInput is the argument schema for the run_code tool.
type runCodeInput struct {
	Code    string `json:"code" jsonschema_description:"JavaScript source to execute in the sandbox"`
	Timeout int    `json:"timeout,omitempty" jsonschema_description:"Wall-clock limit in seconds (1-120, default 30)"`
}

// newMCPHandler builds the MCP facade. A fresh server is built per
// request so that session and run identity can be read from the incoming
// headers; tool registration is cheap and the engine behind it is shared.
func (s *Server) newMCPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.newMCPServer(headerID(r, "Mcp-Session-Id", "X-Session-Id"), headerID(r, "Mcp-Run-Id", "X-Run-Id"))
	}, nil)
}

func (s *Server) newMCPServer(sessionID, runID string) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "oneprompt-sandbox", Version: "v1.0.0"},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_code",
		Description: "Execute JavaScript in a restricted sandbox. Returns printed output plus the value of a trailing expression. Failures (validation, denied imports, timeout, runtime errors) come back as structured data, never as tool errors.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input runCodeInput) (*mcp.CallToolResult, engine.Result, error) {
		result, err := s.service.Execute(ctx, engine.Request{
			Code:           input.Code,
			TimeoutSeconds: input.Timeout,
			SessionID:      sessionID,
			RunID:          runID,
		})
		if err != nil {
			// Request-shape errors (empty or oversized code) are still
			// reported as data so the model can correct and retry.
			result = engine.Result{
				OK: false,
				Error: &engine.ErrorRecord{
					Kind:    engine.KindValidation,
					Message: err.Error(),
				},
			}
		}
		return toolResult(result), result, nil
	})

	server.AddPrompt(&mcp.Prompt{
		Name:        "sandbox_guide",
		Description: "Guide for writing JavaScript that runs inside the data analysis sandbox.",
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "How to use the JavaScript data analysis sandbox",
			Messages: []*mcp.PromptMessage{
				{Role: "user", Content: &mcp.TextContent{Text: sandboxGuide}},
			},
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_libraries",
		Description: "List the modules importable inside the sandbox and the helper functions bound to the execution namespace.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, engine.LibrariesReport, error) {
		report := s.service.Libraries()
		text, _ := json.MarshalIndent(report, "", "  ")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, report, nil
	})

	return server
}

// toolResult renders an execution result as tool content. The blob keeps
// the same JSON shape as the REST facade.
func toolResult(result engine.Result) *mcp.CallToolResult {
	text, _ := json.Marshal(result)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}
}

// sandboxGuide is served through the sandbox_guide prompt so a calling
// agent can learn the namespace before its first run_code attempt.
const sandboxGuide = `# JavaScript Data Analysis Sandbox

## Pre-bound modules

All analysis modules are already bound as globals. require() works for the
same set and nothing else.

- df / dataframe: tabular data (fromCSV, fromRecords, create; column, head,
  records, numRows on a frame)
- csv: parse, stringify
- stats: sum, mean, median, variance, stdev, min, max, percentile
- regress: linear(xs, ys) regression
- cluster: kmeans(points, k)
- strings: title, lines, wrap, join
- uuid, hash, base64, random: utilities

WRONG:
    const fs = require("fs");          // blocked module
    import pandas from "pandas";       // not JavaScript modules, not permitted

CORRECT:
    const frame = df.fromCSV(text);    // globals are already there
    stats.mean(frame.column("price"))

## Results and output

- print(...) and console.log(...) are captured as output; console.error(...)
  lands in a marked stderr section.
- The value of a trailing expression is returned as the result. End your code
  with the expression you want back:
    const m = stats.mean([1, 2, 3]);
    m * 2

## Artifact store helpers (when configured)

    fetch_artifact(path)                    // raw bytes
    fetch_artifact_json(path)               // object or array
    fetch_artifact_csv(path)                // DataFrame
    upload_artifact(path, data, contentType)
    upload_dataframe(path, frame, format)   // format: "csv" or "json"

Relative upload paths are scoped under the current run automatically.

## Restrictions

- No filesystem, network, process, or child_process access.
- No eval, Function constructor, setTimeout, or prototype tampering.
- Wall-clock limit: 1-120 seconds, default 30. Output capped at 100KB.
- Failures come back as structured data with an error kind
  (validation_error, import_error, timeout, execution_error); fix the code
  and call run_code again.
`

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// headerID reads the first non-empty header among names and sanitizes it
// for use as a path segment in artifact keys.
func headerID(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return strings.Trim(unsafeIDChars.ReplaceAllString(v, "_"), "._-")
		}
	}
	return ""
}
