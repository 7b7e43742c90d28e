package routes

import "github.com/quatton/toolsite/pkg/qapi/services/iam"

var (
	APIKeyAuth = []map[string][]string{
		{iam.SchemeAPIKey: {}},
	}
)

type Tag string

const (
	TagHealth    Tag = "health"
	TagScripts   Tag = "scripts"
	TagRuns      Tag = "runs"
	TagArtifacts Tag = "artifacts"
)

func (t Tag) String() string { return string(t) }

func AllTags() []string {
	return []string{
		TagHealth.String(),
		TagScripts.String(),
		TagRuns.String(),
		TagArtifacts.String(),
	}
}
