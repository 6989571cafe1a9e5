package envelope

import (
	"github.com/google/uuid"
)

// DefaultRetries is the per-item attempt budget used when a caller does not
// choose one.
const DefaultRetries = 3

// Request is an ordered batch of work items plus the policy to run it under.
type Request[I any] struct {
	Items         []I    `json:"items" validate:"required"`
	CorrelationID string `json:"correlation_id" validate:"required"`
	AllOrNone     bool   `json:"all_or_none"`
	MaxRetries    int    `json:"retries" validate:"gte=1"`
	Pipeline      string `json:"pipeline,omitempty" validate:"omitempty,max=128"`
}

// NewRequest builds a request with a fresh correlation id. A nil items slice
// is normalised to an empty pipeline.
func NewRequest[I any](items []I, allOrNone bool, maxRetries int) Request[I] {
	if items == nil {
		items = []I{}
	}
	return Request[I]{
		Items:         items,
		CorrelationID: NewCorrelationID(),
		AllOrNone:     allOrNone,
		MaxRetries:    maxRetries,
	}
}

// NewCorrelationID returns a time-based UUID, falling back to a random one
// when the node id or clock sequence cannot be obtained.
func NewCorrelationID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
