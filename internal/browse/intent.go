package browse

import (
	"github.com/stacklok/itembrowser/internal/items"
)

// Intent is the user's current page request. An empty Cursor or Group means
// "none". Intents are values: every change builds a new one.
type Intent struct {
	Cursor string `url:"cursor,omitempty"`
	Search string `url:"search,omitempty"`
	Group  string `url:"group,omitempty"`
}

// HomeIntent is the first page with no filters
var HomeIntent = Intent{}

// WithCursor returns a copy of i positioned at cursor
func (i Intent) WithCursor(cursor string) Intent {
	i.Cursor = cursor
	return i
}

// WithSearch returns a copy of i with a new search term and no cursor
func (i Intent) WithSearch(search string) Intent {
	i.Search = search
	i.Cursor = ""
	return i
}

// WithGroup returns a copy of i with a new group filter and no cursor
func (i Intent) WithGroup(group string) Intent {
	i.Group = group
	i.Cursor = ""
	return i
}

// IsHome reports whether i is the unfiltered first page
func (i Intent) IsHome() bool {
	return i == HomeIntent
}

// ListParams converts i into the query of a list request
func (i Intent) ListParams() items.ListParams {
	return items.ListParams{
		Cursor: i.Cursor,
		Search: i.Search,
		Group:  i.Group,
	}
}

// Page is the result of exactly one fetch. It is replaced wholesale by the
// next successful fetch and never merged.
type Page struct {
	Records    []items.Record
	NextCursor string
	PrevCursor string
}

// HasNext reports whether a following page exists
func (p Page) HasNext() bool {
	return p.NextCursor != ""
}

// HasPrev reports whether a preceding page exists
func (p Page) HasPrev() bool {
	return p.PrevCursor != ""
}

// pageFromResult derives a Page from a list response. Malformed links
// disable their direction.
func pageFromResult(result *items.ListResult) Page {
	if result == nil {
		return Page{}
	}
	return Page{
		Records:    result.Records,
		NextCursor: ExtractCursor(result.Next),
		PrevCursor: ExtractCursor(result.Previous),
	}
}
