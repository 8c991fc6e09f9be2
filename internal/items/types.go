// Package items provides the record schema and the client used to list and
// mutate records held by the items API.
package items

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=types.go Client

const (
	// GroupPrimary is the default record group
	GroupPrimary = "Primary"

	// GroupSecondary is the alternate record group
	GroupSecondary = "Secondary"
)

// DefaultGroups lists the groups known to the items API, in display order
var DefaultGroups = []string{GroupPrimary, GroupSecondary}

// Record is a single item as returned by the items API.
// List responses only carry ID, Name and Group; detail responses also
// include the timestamps.
type Record struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Group     string     `json:"group"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Input holds the writable fields of a record
type Input struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

// ListParams are the query parameters of a list request.
// Empty fields are omitted from the request.
type ListParams struct {
	Cursor string `url:"cursor,omitempty"`
	Search string `url:"search,omitempty"`
	Group  string `url:"group,omitempty"`
}

// ListResult is one page of records plus the absolute links to the
// neighbouring pages. A link is empty when there is no page in that direction.
type ListResult struct {
	Records  []Record
	Next     string
	Previous string
}

// Client is the interface for talking to the items API.
// Every method returns a *CancelledError when ctx is done before the call
// completes, and a *TransportError for network or server failures.
type Client interface {
	// ListRecords fetches one page of records
	ListRecords(ctx context.Context, params ListParams) (*ListResult, error)

	// GetRecord fetches the full record, including timestamps
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)

	// CreateRecord creates a record. Rejected input yields a *ValidationError.
	CreateRecord(ctx context.Context, input Input) (*Record, error)

	// UpdateRecord partially updates a record. Rejected input yields a *ValidationError.
	UpdateRecord(ctx context.Context, id uuid.UUID, input Input) (*Record, error)

	// DeleteRecord deletes a record
	DeleteRecord(ctx context.Context, id uuid.UUID) error
}
