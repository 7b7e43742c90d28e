package qsdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quatton/toolsite/pkg/qapi/schemas"
	"github.com/quatton/toolsite/pkg/qinput"
	"github.com/quatton/toolsite/pkg/qsdk/qerr"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Config{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
}

func problem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "detail": detail})
}

func TestClientRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			problem(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if r.URL.Query().Get("timeout") != "30" {
			t.Errorf("Expected timeout=30, got %q", r.URL.RawQuery)
		}
		var req schemas.RunScriptRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ScriptRelPath == "missing.py" {
			problem(w, http.StatusNotFound, "script not found")
			return
		}
		w.Write([]byte(`{"runId":"r1","stdout":"hi ` + req.Args + `","returnCode":0,"artifacts":[]}`))
	})
	c := newTestClient(t, mux)

	res, err := c.Run(context.Background(), "hello.py", "there", 30)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stdout != "hi there" || res.ReturnCode == nil || *res.ReturnCode != 0 {
		t.Errorf("Unexpected result %+v", res)
	}

	_, err = c.Run(context.Background(), "missing.py", "", 30)
	if !qerr.IsCode(err, qerr.CodeNotFound) {
		t.Errorf("Expected not_found, got %v", err)
	}

	c.APIKey = ""
	_, err = c.Run(context.Background(), "hello.py", "", 30)
	if !qerr.IsCode(err, qerr.CodeUnauthorized) {
		t.Errorf("Expected unauthorized, got %v", err)
	}
}

func TestClientRunToolEncodesUploads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tool/run", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ToolRelPath string                         `json:"toolRelPath"`
			Files       map[string][]map[string]string `json:"files"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		docs := req.Files["doc"]
		if len(docs) != 1 || docs[0]["name"] != "a.bin" {
			problem(w, http.StatusBadRequest, "files.doc: is required")
			return
		}
		data, _ := base64.StdEncoding.DecodeString(docs[0]["base64"])
		w.Write([]byte(`{"stdout":"` + string(data) + `","returnCode":0}`))
	})
	c := newTestClient(t, mux)

	res, err := c.RunTool(context.Background(), ToolRequest{
		ToolRelPath: "t.py",
		Files:       map[string][]qinput.Upload{"doc": {{Name: "a.bin", Data: []byte("xyz")}}},
	}, 0)
	if err != nil {
		t.Fatalf("RunTool failed: %v", err)
	}
	if res.Stdout != "xyz" {
		t.Errorf("Expected upload round trip, got %q", res.Stdout)
	}

	_, err = c.RunTool(context.Background(), ToolRequest{ToolRelPath: "t.py"}, 0)
	if !qerr.IsCode(err, qerr.CodeInvalidRequest) {
		t.Errorf("Expected invalid_request, got %v", err)
	}
}

func TestClientDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/artifacts/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("token") != "tok" {
			problem(w, http.StatusUnauthorized, "invalid or expired download token")
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="out.csv"`)
		w.Write([]byte("a,b\n"))
	})
	c := newTestClient(t, mux)

	name, data, err := c.Download(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if name != "out.csv" || string(data) != "a,b\n" {
		t.Errorf("Unexpected download %s %q", name, data)
	}
	if _, _, err := c.Download(context.Background(), "bad"); !qerr.IsCode(err, qerr.CodeUnauthorized) {
		t.Errorf("Expected unauthorized, got %v", err)
	}
}

func TestClientTransportError(t *testing.T) {
	c := NewClient(&Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: time.Second})
	if _, err := c.Scripts(context.Background()); !qerr.IsCode(err, qerr.CodeTransport) {
		t.Errorf("Expected transport error, got %v", err)
	}
}
