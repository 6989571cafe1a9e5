package codec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ib-77/txpipe/pkg/envelope"
)

func codecs(t *testing.T) []Codec {
	t.Helper()
	c, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	return []Codec{JSON(), c}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if r.Get("json") == nil || r.Get("application/json") == nil || r.Get("CBOR") == nil {
		t.Fatalf("expected json and cbor to resolve by name and content type")
	}
	if names := r.Names(); len(names) != 2 || names[0] != "cbor" || names[1] != "json" {
		t.Fatalf("unexpected names: %v", names)
	}
	if _, err := ByName("xml"); err == nil {
		t.Fatalf("expected an error for an unknown codec")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range codecs(t) {
		in := envelope.NewRequest([]any{"test", "strings", 4}, true, 3)
		in.Pipeline = "capitalize"

		b, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s marshal: %v", c.Name(), err)
		}
		var out envelope.Request[any]
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", c.Name(), err)
		}

		if out.CorrelationID != in.CorrelationID || !out.AllOrNone || out.MaxRetries != 3 || out.Pipeline != "capitalize" {
			t.Fatalf("%s: correlation fields lost: %+v", c.Name(), out)
		}
		if len(out.Items) != 3 || out.Items[0] != "test" || fmt.Sprint(out.Items[2]) != "4" {
			t.Fatalf("%s: items changed: %#v", c.Name(), out.Items)
		}
		if err := out.Validate(); err != nil {
			t.Fatalf("%s: decoded request should validate: %v", c.Name(), err)
		}
	}
}

func TestMissingItemsFailsValidation(t *testing.T) {
	t.Parallel()

	for _, c := range codecs(t) {
		b, err := c.Marshal(map[string]any{"correlation_id": "abc", "retries": 1})
		if err != nil {
			t.Fatalf("%s marshal: %v", c.Name(), err)
		}
		var out envelope.Request[any]
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", c.Name(), err)
		}
		if err := out.Validate(); !errors.Is(err, envelope.ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", c.Name(), err)
		}
	}
}

func TestEmptyItemsIsValid(t *testing.T) {
	t.Parallel()

	for _, c := range codecs(t) {
		b, err := c.Marshal(envelope.NewRequest([]any{}, false, 1))
		if err != nil {
			t.Fatalf("%s marshal: %v", c.Name(), err)
		}
		var out envelope.Request[any]
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", c.Name(), err)
		}
		if err := out.Validate(); err != nil {
			t.Fatalf("%s: empty pipeline must be valid, got %v", c.Name(), err)
		}
	}
}

func TestResponseKeepsFailureMarkers(t *testing.T) {
	t.Parallel()

	for _, c := range codecs(t) {
		req := envelope.NewRequest([]any{"test", false, 4}, false, 3)
		in := envelope.NewResponse[any, any](req)
		in.Results = []envelope.Outcome[any]{
			envelope.Succeeded[any]("Test"),
			envelope.Succeeded[any](false),
			envelope.Failed[any](errors.New("not a string")),
		}
		in.Failures = []any{4}

		b, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s marshal: %v", c.Name(), err)
		}
		var out envelope.Response[any, any]
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", c.Name(), err)
		}

		if len(out.Results) != 3 {
			t.Fatalf("%s: expected 3 results, got %d", c.Name(), len(out.Results))
		}
		if !out.Results[1].OK || out.Results[1].Value != false {
			t.Fatalf("%s: a false success value must stay a success: %+v", c.Name(), out.Results[1])
		}
		if out.Results[2].OK || out.Results[2].Error != "not a string" {
			t.Fatalf("%s: failure marker lost: %+v", c.Name(), out.Results[2])
		}
		if len(out.Failures) != 1 || fmt.Sprint(out.Failures[0]) != "4" {
			t.Fatalf("%s: failures changed: %#v", c.Name(), out.Failures)
		}
		if out.CorrelationID != req.CorrelationID {
			t.Fatalf("%s: correlation id lost", c.Name())
		}
	}
}
