package schemas

import "github.com/quatton/toolsite/pkg/qtool"

type ScriptList struct {
	Root    string             `json:"root" doc:"Absolute scripts root"`
	Scripts []qtool.Descriptor `json:"scripts" doc:"Scripts sorted by relative path"`
}
