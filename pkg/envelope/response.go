package envelope

// Outcome is the wire form of one item's result. OK=false is the failure
// marker; a success value always travels under Value with OK=true, so no
// legitimate value can be mistaken for a failure.
type Outcome[V any] struct {
	OK    bool   `json:"ok"`
	Value V      `json:"value"`
	Error string `json:"error,omitempty"`
}

func Succeeded[V any](v V) Outcome[V] {
	return Outcome[V]{OK: true, Value: v}
}

func Failed[V any](err error) Outcome[V] {
	o := Outcome[V]{OK: false}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// Response reports what happened to a Request. It echoes the request's
// correlation fields so the caller can match it up.
type Response[I, V any] struct {
	Results       []Outcome[V] `json:"results"`
	Failures      []I          `json:"failures"`
	Success       bool         `json:"success"`
	CorrelationID string       `json:"correlation_id"`
	AllOrNone     bool         `json:"all_or_none"`
	MaxRetries    int          `json:"retries"`
	Pipeline      string       `json:"pipeline,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// NewResponse returns an empty response echoing req, sized for its items.
func NewResponse[I, V any](req Request[I]) Response[I, V] {
	return Response[I, V]{
		Results:       make([]Outcome[V], 0, len(req.Items)),
		Failures:      make([]I, 0),
		CorrelationID: req.CorrelationID,
		AllOrNone:     req.AllOrNone,
		MaxRetries:    req.MaxRetries,
		Pipeline:      req.Pipeline,
	}
}

// Reject builds the reply for a request refused before execution: nothing
// processed, success false, and the reason in Error.
func Reject[I, V any](req Request[I], err error) Response[I, V] {
	resp := NewResponse[I, V](req)
	resp.Success = false
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// Complete reports whether every item of a request with n items was
// processed successfully.
func (r Response[I, V]) Complete(n int) bool {
	if len(r.Results) != n {
		return false
	}
	for _, o := range r.Results {
		if !o.OK {
			return false
		}
	}
	return true
}
