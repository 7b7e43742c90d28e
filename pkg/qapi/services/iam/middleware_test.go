package iam

import (
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/toolsite/pkg/qlog"
)

func TestCheck(t *testing.T) {
	open := NewAPIKeyService("", qlog.Discard())
	if open.Enabled() || !open.Check("") {
		t.Errorf("Expected an empty key to let everything through")
	}

	gate := NewAPIKeyService("secret", qlog.Discard())
	if !gate.Check("secret") {
		t.Errorf("Expected matching key to pass")
	}
	for _, bad := range []string{"", "secre", "secret2", "SECRET"} {
		if gate.Check(bad) {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}

func TestRequiresKey(t *testing.T) {
	if requiresKey(nil) || requiresKey(&huma.Operation{}) {
		t.Errorf("Expected operations without security to be public")
	}
	op := &huma.Operation{Security: []map[string][]string{{SchemeAPIKey: {}}}}
	if !requiresKey(op) {
		t.Errorf("Expected apiKey security to require the key")
	}
}
