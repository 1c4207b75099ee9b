package domain

// Models is the fixed menu of selectable inference models.
var Models = []string{"gpt-4o-mini", "gpt-4o", "o1-mini", "o1"}

// IsKnownModel reports whether name is one of the selectable models.
func IsKnownModel(name string) bool {
	for _, m := range Models {
		if m == name {
			return true
		}
	}
	return false
}

// SessionConfig holds the user-supplied configuration for one chat session.
// Secrets live in memory only and are never persisted.
type SessionConfig struct {
	Credential   string `json:"credential"`
	Model        string `json:"model"`
	SearchAPIKey string `json:"search_api_key"`
}

// Complete reports whether the configuration is sufficient to build an agent.
func (c SessionConfig) Complete() bool {
	return c.Credential != "" && c.Model != ""
}
