package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/toolsite/pkg/qapi/schemas"
	"github.com/quatton/toolsite/pkg/qexec"
	"github.com/quatton/toolsite/pkg/qinput"
	"github.com/quatton/toolsite/pkg/qresult"
	"github.com/quatton/toolsite/pkg/qtool"
)

// RunScriptInput defines the input for an advanced run
type RunScriptInput struct {
	Timeout string `query:"timeout" doc:"Deadline in seconds, clamped to 1..3600; empty or unparseable uses the server default"`
	Body    schemas.RunScriptRequest
}

// RunToolInput defines the input for a guided run
type RunToolInput struct {
	Timeout string `query:"timeout" doc:"Deadline in seconds, clamped to 1..3600; empty or unparseable uses the server default"`
	Body    schemas.RunToolRequest
}

// timeoutSeconds reads the timeout query leniently: anything that is not
// an integer falls back to the default.
func timeoutSeconds(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

// RunOutput carries the run result. Timeouts, spawn failures and
// non-zero exits are still 200s; inspect returnCode and error.
type RunOutput struct {
	Body qresult.RunResult
}

// bodyLimit leaves room for base64 inflation of the upload budget plus the
// rest of the JSON document.
func bodyLimit(uploadLimit int64) int64 {
	if uploadLimit <= 0 {
		return 0
	}
	return uploadLimit/3*4 + 4 + 1<<20
}

// RegisterRuns registers the advanced and guided run endpoints
func RegisterRuns(api huma.API, coord *qexec.Coordinator, uploadLimit int64) {
	huma.Register(api, huma.Operation{
		OperationID: "run-script",
		Method:      http.MethodPost,
		Path:        "/api/run",
		Summary:     "Run a script",
		Description: "Runs a script with a shell-quoted argument string and returns its captured output and artifacts",
		Tags:        []string{TagRuns.String()},
		Security:    APIKeyAuth,
	}, func(ctx context.Context, input *RunScriptInput) (*RunOutput, error) {
		if coord == nil {
			return nil, huma.Error503ServiceUnavailable("runner not configured")
		}
		res, err := coord.RunAdvanced(ctx, qexec.AdvancedRequest{
			ScriptID: input.Body.ScriptRelPath,
			Args:     input.Body.Args,
			Timeout:  timeoutSeconds(input.Timeout),
		})
		if err != nil {
			return nil, runError(err)
		}
		return &RunOutput{Body: *res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "run-tool",
		Method:       http.MethodPost,
		Path:         "/api/tool/run",
		Summary:      "Run a guided tool",
		Description:  "Marshals inputs and uploads through the tool's schema, runs it and returns its captured output and artifacts",
		Tags:         []string{TagRuns.String()},
		Security:     APIKeyAuth,
		MaxBodyBytes: bodyLimit(uploadLimit),
	}, func(ctx context.Context, input *RunToolInput) (*RunOutput, error) {
		if coord == nil {
			return nil, huma.Error503ServiceUnavailable("runner not configured")
		}
		files, err := qinput.ParseFiles(input.Body.Files, uploadLimit)
		if err != nil {
			return nil, runError(err)
		}
		res, err := coord.RunGuided(ctx, qexec.GuidedRequest{
			ScriptID: input.Body.ToolRelPath,
			Inputs:   input.Body.Inputs,
			Files:    files,
			Timeout:  timeoutSeconds(input.Timeout),
		})
		if err != nil {
			return nil, runError(err)
		}
		return &RunOutput{Body: *res}, nil
	})
}

// runError maps the errors raised before anything is spawned.
func runError(err error) error {
	var verr *qtool.ValidationError
	switch {
	case errors.Is(err, qtool.ErrNotFound):
		return huma.Error404NotFound("script not found", err)
	case errors.As(err, &verr):
		return huma.Error400BadRequest(verr.Error(), err)
	default:
		return huma.Error500InternalServerError("run failed", err)
	}
}
