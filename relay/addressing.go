package relay

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseOperatorReply extracts the target user id and body from operator
// text of the form "@<user id> <body>". The text is split at the first
// whitespace run; the body keeps everything after that run.
func ParseOperatorReply(text string) (int64, string, error) {
	if !strings.HasPrefix(text, "@") {
		return 0, "", ErrNotAddressed
	}
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return 0, "", fmt.Errorf("%w: missing body", ErrFormat)
	}
	token := text[1:idx]
	body := strings.TrimLeftFunc(text[idx:], unicode.IsSpace)
	if body == "" {
		return 0, "", fmt.Errorf("%w: missing body", ErrFormat)
	}
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: invalid user id %q", ErrFormat, token)
	}
	return id, body, nil
}
