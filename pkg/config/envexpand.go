package config

import (
	"os"
	"regexp"
)

// placeholderPattern matches ${NAME} references. Only the braced form is
// recognised so bare $ characters in regex patterns, passwords, and shell
// snippets pass through untouched.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv substitutes ${NAME} placeholders in configuration content with
// the corresponding environment variable values.
//
// Examples:
//   - ${OPENAI_COMPAT_API_KEY} → value of OPENAI_COMPAT_API_KEY
//   - ${DB_HOST}:${DB_PORT}    → hostname:port with both expanded
//   - "price\$[0-9]+"          → preserved literally (no braces)
//
// Missing variables expand to the empty string; validation catches required
// fields left empty afterwards.
func ExpandEnv(data []byte) []byte {
	return placeholderPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := placeholderPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}
