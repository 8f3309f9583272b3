package pool

import "strings"

// authMarkers are substrings (lowercased) that indicate the agent
// binary failed to authenticate with its API provider rather than
// crashing on its own bug.
var authMarkers = []string{
	"authentication_error",
	"authentication failed",
	"invalid api key",
	"invalid x-api-key",
	"401 unauthorized",
	"missing api key",
	"api key not found",
	"credit balance is too low",
	"please run /login",
	"oauth token has expired",
}

// IsAuthError reports whether output looks like an authentication
// failure. Checked per line while streaming, and once more over the
// joined tail buffer when a process exits non-zero.
func IsAuthError(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// AuthHelpBanner is emitted once per agent process, before the
// triggering line, when an auth error is detected.
var AuthHelpBanner = []string{
	"============================================================",
	"AGENT AUTHENTICATION ERROR",
	"The agent subprocess could not authenticate with its API provider.",
	"To fix this:",
	"  1. Check that ANTHROPIC_API_KEY is set in the supervisor's environment",
	"  2. Verify the key is valid and has remaining credit",
	"  3. Restart the agent after fixing credentials",
	"============================================================",
}

// lineRing is a fixed-size buffer of the most recent unredacted output
// lines, used for exit-time auth diagnosis.
type lineRing struct {
	lines []string
	size  int
}

func newLineRing(size int) *lineRing {
	return &lineRing{size: size}
}

func (r *lineRing) add(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > r.size {
		r.lines = r.lines[1:]
	}
}

func (r *lineRing) joined() string {
	return strings.Join(r.lines, "\n")
}
