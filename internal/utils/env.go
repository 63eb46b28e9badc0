package utils

import (
	"os"
	"strings"
)

// SafeEnv returns the environment variable value for key, or fallback when
// the variable is unset or blank.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
