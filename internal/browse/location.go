package browse

import (
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/google/go-querystring/query"
)

// Codec maps an Intent to and from a location string such as
// "?cursor=p2&group=Primary&search=rock".
type Codec struct {
	groups []string
}

// NewCodec returns a codec. When groups is non-empty, a decoded group outside
// that set is treated as absent.
func NewCodec(groups ...string) *Codec {
	return &Codec{groups: slices.Clone(groups)}
}

// Groups returns the allowed group names, if any
func (c *Codec) Groups() []string {
	return slices.Clone(c.groups)
}

// Encode returns the canonical location of intent: only non-empty
// parameters, sorted by key, prefixed with "?". The home intent encodes to "".
func (*Codec) Encode(intent Intent) string {
	values, err := query.Values(intent)
	if err != nil {
		// Intent holds only strings, so this cannot happen in practice
		slog.Error("Failed to encode intent", "error", err)
		return ""
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// Decode parses a location string into an Intent. It accepts "?a=b", "a=b"
// or a full URL. It never fails: malformed or unknown parameters are treated
// as absent, and only the first value of a repeated parameter is used.
func (c *Codec) Decode(location string) Intent {
	location = strings.TrimSpace(location)
	if location == "" {
		return Intent{}
	}

	rawQuery := location
	if strings.Contains(location, "://") {
		u, err := url.Parse(location)
		if err != nil {
			slog.Debug("Ignoring malformed location", "location", location)
			return Intent{}
		}
		rawQuery = u.RawQuery
	} else if idx := strings.IndexByte(location, '?'); idx >= 0 {
		rawQuery = location[idx+1:]
	}
	if idx := strings.IndexByte(rawQuery, '#'); idx >= 0 {
		rawQuery = rawQuery[:idx]
	}

	values := parseLenient(rawQuery)
	intent := Intent{
		Cursor: values.Get(CursorParam),
		Search: values.Get("search"),
		Group:  values.Get("group"),
	}
	return c.Normalize(intent)
}

// Allows reports whether group may appear in a location. The empty group and
// any group of a codec without a configured set are allowed.
func (c *Codec) Allows(group string) bool {
	return group == "" || len(c.groups) == 0 || slices.Contains(c.groups, group)
}

// Normalize drops a group the codec does not allow, so that
// Decode(Encode(Normalize(i))) == Normalize(i) for every intent.
func (c *Codec) Normalize(intent Intent) Intent {
	if !c.Allows(intent.Group) {
		slog.Debug("Ignoring unknown group", "group", intent.Group)
		intent.Group = ""
	}
	return intent
}

// parseLenient parses a query string, skipping pairs that fail to unescape
// instead of rejecting the whole string.
func parseLenient(rawQuery string) url.Values {
	values := url.Values{}
	for pair := range strings.SplitSeq(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			continue
		}
		values.Add(key, value)
	}
	return values
}
