package schemas

// RunScriptRequest runs a script with a raw, shell-quoted argument string.
type RunScriptRequest struct {
	ScriptRelPath string `json:"scriptRelPath" minLength:"1" doc:"Script path relative to the scripts root" example:"hello/hello.py"`
	Args          string `json:"args,omitempty" doc:"Arguments, split like a POSIX shell" example:"--name 'big world'"`
}

// RunToolRequest runs a script through its guided input schema.
type RunToolRequest struct {
	ToolRelPath string         `json:"toolRelPath" minLength:"1" doc:"Script path relative to the scripts root"`
	Inputs      map[string]any `json:"inputs,omitempty" doc:"Field values keyed by input key"`
	// Files stays loosely typed; each key holds a list of {name, base64}
	// objects or a single one.
	Files map[string]any `json:"files,omitempty" doc:"Uploads keyed by input key: [{name, base64}]"`
}
