package browse

import (
	"log/slog"
	"net/url"
)

// CursorParam is the query parameter carrying the pagination token
const CursorParam = "cursor"

// ExtractCursor returns the cursor token of an absolute page link, or ""
// when the link is empty, has no cursor, or cannot be parsed. The token is
// returned verbatim; its structure belongs to the server.
func ExtractCursor(link string) string {
	if link == "" {
		return ""
	}

	u, err := url.Parse(link)
	if err != nil || !u.IsAbs() {
		slog.Debug("Ignoring malformed page link", "link", link)
		return ""
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		slog.Debug("Ignoring page link with malformed query", "link", link)
		return ""
	}

	return values.Get(CursorParam)
}
