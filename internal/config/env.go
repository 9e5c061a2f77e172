package config

import (
	"fmt"
	"os"
	"regexp"
)

// ${NAME} or ${NAME:-fallback}
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvStrict replaces ${NAME} references with the environment value. A
// reference with a fallback (${NAME:-value}) uses it when NAME is unset or
// empty; a bare reference to an unset variable is an error.
func ExpandEnvStrict(input string) (string, error) {
	var missing []string
	out := envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		val, ok := os.LookupEnv(m[1])
		switch {
		case ok && val != "":
			return val
		case m[2] != "":
			return m[3]
		case ok:
			return ""
		}
		missing = append(missing, m[1])
		return ref
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing env var %s", missing[0])
	}
	return out, nil
}
