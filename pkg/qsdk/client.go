package qsdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/quatton/toolsite/pkg/qapi/schemas"
	"github.com/quatton/toolsite/pkg/qinput"
	"github.com/quatton/toolsite/pkg/qresult"
	"github.com/quatton/toolsite/pkg/qsdk/qerr"
)

const headerAPIKey = "X-Api-Key"

// Client talks to a toolsite server. Build one per Config.
type Client struct {
	BaseURL string
	APIKey  string

	http *http.Client
}

// NewClient uses cfg.APIKey, falling back to the keyring entry for
// cfg.BaseURL.
func NewClient(cfg *Config) *Client {
	key := cfg.APIKey
	if key == "" {
		key, _ = LoadAPIKey(cfg.BaseURL)
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		APIKey:  key,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// ToolRequest is a guided run with uploads given as raw bytes.
type ToolRequest struct {
	ToolRelPath string
	Inputs      map[string]any
	Files       map[string][]qinput.Upload
}

// Scripts lists the catalog.
func (c *Client) Scripts(ctx context.Context) (*schemas.ScriptList, error) {
	var out schemas.ScriptList
	if err := c.do(ctx, http.MethodGet, "/api/scripts", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Run runs a script in advanced mode. timeout is in seconds; 0 uses the
// server default.
func (c *Client) Run(ctx context.Context, scriptRelPath, args string, timeout int) (*qresult.RunResult, error) {
	body := schemas.RunScriptRequest{ScriptRelPath: scriptRelPath, Args: args}
	var out qresult.RunResult
	if err := c.do(ctx, http.MethodPost, withTimeout("/api/run", timeout), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunTool runs a guided tool.
func (c *Client) RunTool(ctx context.Context, req ToolRequest, timeout int) (*qresult.RunResult, error) {
	body := schemas.RunToolRequest{
		ToolRelPath: req.ToolRelPath,
		Inputs:      req.Inputs,
		Files:       make(map[string]any, len(req.Files)),
	}
	for key, uploads := range req.Files {
		list := make([]any, 0, len(uploads))
		for _, u := range uploads {
			list = append(list, map[string]any{
				"name":   u.Name,
				"base64": base64.StdEncoding.EncodeToString(u.Data),
			})
		}
		body.Files[key] = list
	}

	var out qresult.RunResult
	if err := c.do(ctx, http.MethodPost, withTimeout("/api/tool/run", timeout), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches an artifact by its download token.
func (c *Client) Download(ctx context.Context, token string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/artifacts/"+url.PathEscape(token), nil)
	if err != nil {
		return "", nil, qerr.New(qerr.CodeUnknown, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, qerr.New(qerr.CodeTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", nil, statusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, qerr.New(qerr.CodeTransport, err)
	}

	filename := "artifact"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, data, nil
}

func withTimeout(path string, timeout int) string {
	if timeout <= 0 {
		return path
	}
	return path + "?timeout=" + strconv.Itoa(timeout)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return qerr.New(qerr.CodeUnknown, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return qerr.New(qerr.CodeUnknown, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set(headerAPIKey, c.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return qerr.New(qerr.CodeTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return qerr.New(qerr.CodeServer, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// statusError reads the problem document huma writes for errors.
func statusError(resp *http.Response) error {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &problem)

	msg := problem.Detail
	if msg == "" {
		msg = problem.Title
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return qerr.FromStatus(resp.StatusCode, fmt.Errorf("%s", msg))
}
