package qcatalog

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

const maxHeaderLines = 64

// ReadDescription returns the first line of a script's leading docstring
// (Python) or leading comment block (shell, JavaScript). Empty when none.
func ReadDescription(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(lines) < maxHeaderLines {
		lines = append(lines, sc.Text())
	}
	if len(lines) > 0 {
		lines[0] = strings.TrimPrefix(lines[0], "\ufeff")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return pythonDocstring(lines)
	case ".js":
		return leadingComment(lines, "//")
	default:
		return leadingComment(lines, "#")
	}
}

func pythonDocstring(lines []string) string {
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimLeft(line, "rRuUbB")
		var quote string
		switch {
		case strings.HasPrefix(line, `"""`):
			quote = `"""`
		case strings.HasPrefix(line, "'''"):
			quote = "'''"
		case strings.HasPrefix(line, `"`), strings.HasPrefix(line, "'"):
			quote = line[:1]
		default:
			return ""
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, quote))
		if idx := strings.Index(rest, quote); idx >= 0 {
			return strings.TrimSpace(rest[:idx])
		}
		if rest != "" {
			return rest
		}
		// Docstring text starts on the following line.
		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimSpace(lines[j])
			if idx := strings.Index(next, quote); idx >= 0 {
				return strings.TrimSpace(next[:idx])
			}
			if next != "" {
				return next
			}
		}
		return ""
	}
	return ""
}

func leadingComment(lines []string, marker string) string {
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if i == 0 && strings.HasPrefix(line, "#!") {
			continue
		}
		if line == "" {
			continue
		}
		if marker == "//" && strings.HasPrefix(line, "/*") {
			text := strings.TrimSpace(strings.TrimLeft(line, "/*"))
			text = strings.TrimSpace(strings.TrimSuffix(text, "*/"))
			if text != "" {
				return text
			}
			for _, next := range lines[i+1:] {
				next = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(next), "*"))
				if strings.HasPrefix(next, "/") {
					return ""
				}
				if next != "" {
					return strings.TrimSpace(strings.TrimSuffix(next, "*/"))
				}
			}
			return ""
		}
		if !strings.HasPrefix(line, marker) {
			return ""
		}
		text := strings.TrimSpace(strings.TrimLeft(line, marker[:1]))
		if text == "" || strings.HasPrefix(text, "-*-") || strings.HasPrefix(text, "shellcheck") {
			continue
		}
		return text
	}
	return ""
}
