package qresult

import (
	"bytes"
	"regexp"
)

var missingModule = regexp.MustCompile(`No module named '([A-Za-z0-9_.\-]+)'`)

// Import names whose pip package is called something else.
var pipNames = map[string]string{
	"PIL":  "Pillow",
	"cv2":  "opencv-python",
	"yaml": "PyYAML",
	"bs4":  "beautifulsoup4",
}

var extraSteps = map[string]string{
	"playwright": ", then install a browser with 'playwright install'",
}

// Hint suggests a fix for well-known failures in a tool's stderr.
func Hint(stderr []byte) string {
	if i := bytes.Index(stderr, []byte("Missing dependency: ")); i >= 0 {
		line := stderr[i:]
		if j := bytes.IndexByte(line, '\n'); j >= 0 {
			line = line[:j]
		}
		return string(bytes.TrimSpace(line))
	}
	m := missingModule.FindSubmatch(stderr)
	if m == nil {
		if bytes.Contains(stderr, []byte("command not found")) || bytes.Contains(stderr, []byte("not found: node")) {
			return "An interpreter or command used by the tool is not installed on the server."
		}
		return ""
	}
	module := string(m[1])
	if i := bytes.IndexByte(m[1], '.'); i > 0 {
		module = string(m[1][:i])
	}
	pkg := module
	if name, ok := pipNames[module]; ok {
		pkg = name
	}
	return "Missing dependency: " + pkg + " (install it in the tool's .venv" + extraSteps[pkg] + ")."
}
