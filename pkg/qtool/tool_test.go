package qtool

import (
	"testing"
	"time"
)

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		def     time.Duration
		want    time.Duration
	}{
		{"zero uses default", 0, 30 * time.Second, 30 * time.Second},
		{"zero without default", 0, 0, DefaultTimeoutSeconds * time.Second},
		{"negative clamps to min", -5, 0, time.Second},
		{"above max clamps", 99999, 0, MaxTimeoutSeconds * time.Second},
		{"in range", 42, 0, 42 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampTimeout(tt.seconds, tt.def)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFieldSpecAccepts(t *testing.T) {
	f := FieldSpec{Key: "img", Type: FieldFiles, Accept: []string{".PNG", "jpg"}}
	if !f.Accepts("photo.png") {
		t.Error("Expected photo.png to be accepted")
	}
	if !f.Accepts("photo.JPG") {
		t.Error("Expected photo.JPG to be accepted")
	}
	if f.Accepts("notes.txt") {
		t.Error("Expected notes.txt to be rejected")
	}
	if !(FieldSpec{}).Accepts("anything.bin") {
		t.Error("Expected empty accept list to accept everything")
	}
}

func TestSchemaValidate(t *testing.T) {
	valid := &Schema{
		Mode: ModeGuided,
		Inputs: []FieldSpec{
			{Key: "images", Type: FieldFiles},
			{Key: "quality", Type: FieldNumber},
			{Key: "outputName", Type: FieldText},
		},
		Artifact: &ArtifactSpec{FilenameFromInputKey: "outputName"},
		Binding:  BindingTemplate,
		Args:     []string{"--target", "{images:dir}", "--output", "{@out:outputName}", "{quality|--quality}"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid schema, got %v", err)
	}

	cases := map[string]*Schema{
		"duplicate key": {Inputs: []FieldSpec{{Key: "a", Type: FieldText}, {Key: "a", Type: FieldText}}},
		"unknown type":  {Inputs: []FieldSpec{{Key: "a", Type: "color"}}},
		"missing key":   {Inputs: []FieldSpec{{Type: FieldText}}},
		"bad artifact":  {Artifact: &ArtifactSpec{FilenameFromInputKey: "nope"}},
		"bad bundle":    {Artifact: &ArtifactSpec{Bundle: "tar"}},
		"unknown arg":   {Binding: BindingTemplate, Args: []string{"{ghost}"}},
		"bad modifier":  {Binding: BindingTemplate, Inputs: []FieldSpec{{Key: "a", Type: FieldFile}}, Args: []string{"{a:base}"}},
	}
	for name, s := range cases {
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestParseTemplate(t *testing.T) {
	tokens, err := ParseTemplate([]string{"--force", "{url}", "{lossless|--lossless}", "{images:dir}", "{@out}", "{@out:name}", "{@in}", "a{b}c"})
	if err != nil {
		t.Fatalf("ParseTemplate failed: %v", err)
	}
	want := []Token{
		{Kind: TokenLiteral, Text: "--force"},
		{Kind: TokenValue, Key: "url"},
		{Kind: TokenFlag, Key: "lossless", Text: "--lossless"},
		{Kind: TokenDir, Key: "images"},
		{Kind: TokenOutDir},
		{Kind: TokenOutFile, Key: "name"},
		{Kind: TokenInDir},
		{Kind: TokenLiteral, Text: "a{b}c"},
	}
	if len(tokens) != len(want) {
		t.Fatalf("Expected %d tokens, got %d", len(want), len(tokens))
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: expected %+v, got %+v", i, want[i], tokens[i])
		}
	}

	if _, err := ParseTemplate([]string{"{@tmp}"}); err == nil {
		t.Error("Expected error for unknown @ placeholder")
	}
}

func TestValidationError(t *testing.T) {
	err := Invalid("files.xlsx", "expected a list of uploads")
	if !IsValidation(err) {
		t.Error("Expected IsValidation to be true")
	}
	if err.Error() != "files.xlsx: expected a list of uploads" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
