package secret

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

// ErrMissingEnv is returned when a ${VAR} reference has no value in the environment.
var ErrMissingEnv = errors.New("secret: missing environment variables")

var bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const dollarEscape = "\x00OFFLINEWORKER_DOLLAR\x00"

// ExpandEnvStrict expands $VAR and ${VAR} in s. A braced variable that is not
// set is an error; a bare $VAR expands to "" as with os.ExpandEnv. "$$" is a
// literal dollar sign.
func ExpandEnvStrict(s string) (string, error) {
	s = strings.ReplaceAll(s, "$$", dollarEscape)

	var missing []string
	for _, m := range bracedVar.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok && !slices.Contains(missing, m[1]) {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	return strings.ReplaceAll(os.ExpandEnv(s), dollarEscape, "$"), nil
}
