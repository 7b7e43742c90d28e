package utils

import (
	"os"
	"strings"
)

// Environment is the normalized ENVIRONMENT value, "development" when unset.
func Environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		return "development"
	}
	return env
}

// IsDev reports a local or development deployment. Only these load .env.
func IsDev() bool {
	switch Environment() {
	case "development", "dev", "local":
		return true
	}
	return false
}

// IsProd reports a production deployment.
func IsProd() bool {
	switch Environment() {
	case "production", "prod":
		return true
	}
	return false
}
