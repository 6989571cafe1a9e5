package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/ib-77/txpipe/pkg/capability"
	"github.com/ib-77/txpipe/pkg/envelope"
)

// spy wraps a capability and records what the executor asked of it.
type spy[I, V any] struct {
	inner     capability.Capability[I, V]
	calls     []I
	rollbacks [][]I
	rbErr     error
}

func (s *spy[I, V]) Handle(ctx context.Context, item I) (V, error) {
	s.calls = append(s.calls, item)
	return s.inner.Handle(ctx, item)
}

func (s *spy[I, V]) Rollback(ctx context.Context, items []I) error {
	s.rollbacks = append(s.rollbacks, append([]I(nil), items...))
	if err := s.inner.Rollback(ctx, items); err != nil {
		return err
	}
	return s.rbErr
}

func callsFor[I comparable, V any](s *spy[I, V], item I) int {
	n := 0
	for _, c := range s.calls {
		if c == item {
			n++
		}
	}
	return n
}

var errAlways = errors.New("always fails")

func alwaysFail[I any]() capability.Capability[I, I] {
	return capability.Func[I, I]{HandleFunc: func(context.Context, I) (I, error) {
		var zero I
		return zero, errAlways
	}}
}

func request[I any](items []I, allOrNone bool, retries int) envelope.Request[I] {
	return envelope.NewRequest(items, allOrNone, retries)
}

type stats struct {
	items, ok, attempts, pipelines, rollbacks int
	lastSuccess                               bool
}

func (s *stats) ObserveItem(_ string, ok bool, attempts int) {
	s.items++
	s.attempts += attempts
	if ok {
		s.ok++
	}
}

func (s *stats) ObservePipeline(_ string, success bool, _ time.Duration) {
	s.pipelines++
	s.lastSuccess = success
}

func (s *stats) ObserveRollback(string, error) { s.rollbacks++ }

func TestRun_AllOrNoneRollsBackProcessed(t *testing.T) {
	t.Parallel()

	s := &spy[any, any]{inner: capability.Adapt[string, string](capability.Capitalize{})}
	items := []any{"test", "strings", 4}
	resp := New[any, any](s).Run(context.Background(), request(items, true, 3))

	want := []envelope.Outcome[any]{
		envelope.Succeeded[any]("Test"),
		envelope.Succeeded[any]("Strings"),
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	if !reflect.DeepEqual(resp.Results[:2], want) {
		t.Fatalf("unexpected successes: %+v", resp.Results[:2])
	}
	if resp.Results[2].OK || resp.Results[2].Error == "" {
		t.Fatalf("expected a failure marker for 4, got %+v", resp.Results[2])
	}
	if !reflect.DeepEqual(resp.Failures, []any{4}) {
		t.Fatalf("expected failures [4], got %v", resp.Failures)
	}
	if resp.Success {
		t.Fatalf("expected success=false")
	}
	if len(s.rollbacks) != 1 || !reflect.DeepEqual(s.rollbacks[0], items) {
		t.Fatalf("expected one rollback with all three items, got %v", s.rollbacks)
	}
	if n := callsFor(s, any(4)); n != 3 {
		t.Fatalf("expected 3 attempts on 4, got %d", n)
	}
}

func TestRun_BestEffortProcessesEverything(t *testing.T) {
	t.Parallel()

	s := &spy[any, any]{inner: capability.Adapt[string, string](capability.Capitalize{})}
	resp := New[any, any](s).Run(context.Background(), request([]any{4, "test", "strings"}, false, 3))

	if len(resp.Results) != 3 {
		t.Fatalf("expected every item attempted, got %d results", len(resp.Results))
	}
	if resp.Results[0].OK || !resp.Results[1].OK || !resp.Results[2].OK {
		t.Fatalf("unexpected outcomes: %+v", resp.Results)
	}
	if !reflect.DeepEqual(resp.Failures, []any{4}) || resp.Success {
		t.Fatalf("expected failures [4] and success=false, got %v / %v", resp.Failures, resp.Success)
	}
	if len(s.rollbacks) != 0 {
		t.Fatalf("rollback must not run without all-or-none, got %v", s.rollbacks)
	}
}

func TestRun_AllOrNoneStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	s := &spy[string, string]{inner: alwaysFail[string]()}
	resp := New[string, string](s).Run(context.Background(), request([]string{"a", "b"}, true, 1))

	if callsFor(s, "a") != 1 || callsFor(s, "b") != 0 {
		t.Fatalf("expected a once and b never, got calls %v", s.calls)
	}
	if len(resp.Results) != 1 || resp.Results[0].OK {
		t.Fatalf("expected [Failure], got %+v", resp.Results)
	}
	if len(s.rollbacks) != 1 || !reflect.DeepEqual(s.rollbacks[0], []string{"a"}) {
		t.Fatalf("expected rollback with [a], got %v", s.rollbacks)
	}
}

func TestRun_EmptyPipeline(t *testing.T) {
	t.Parallel()

	for _, allOrNone := range []bool{false, true} {
		s := &spy[string, string]{inner: alwaysFail[string]()}
		resp := New[string, string](s).Run(context.Background(), request([]string{}, allOrNone, 3))

		if !resp.Success || len(resp.Results) != 0 || len(resp.Failures) != 0 {
			t.Fatalf("all_or_none=%v: expected trivial success, got %+v", allOrNone, resp)
		}
		if len(s.rollbacks) != 0 || len(s.calls) != 0 {
			t.Fatalf("all_or_none=%v: nothing should be called, got calls=%v rollbacks=%v", allOrNone, s.calls, s.rollbacks)
		}
	}
}

// failSet makes every item in bad fail on every attempt.
func failSet(bad map[int]bool) capability.Capability[int, int] {
	return capability.Func[int, int]{HandleFunc: func(_ context.Context, v int) (int, error) {
		if bad[v] {
			return 0, fmt.Errorf("item %d: %w", v, errAlways)
		}
		return v * 10, nil
	}}
}

func TestRun_Properties(t *testing.T) {
	t.Parallel()

	const n = 4
	items := []int{0, 1, 2, 3}

	for mask := 0; mask < 1<<n; mask++ {
		bad := map[int]bool{}
		firstBad := -1
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				bad[i] = true
				if firstBad < 0 {
					firstBad = i
				}
			}
		}

		for _, allOrNone := range []bool{false, true} {
			for _, retries := range []int{1, 2, 3} {
				name := fmt.Sprintf("mask=%04b/aon=%v/retries=%d", mask, allOrNone, retries)
				s := &spy[int, int]{inner: failSet(bad)}
				resp := New[int, int](s).Run(context.Background(), request(items, allOrNone, retries))

				hasFailure := false
				for _, o := range resp.Results {
					if !o.OK {
						hasFailure = true
					}
				}

				if !allOrNone && len(resp.Results) != len(items) {
					t.Fatalf("%s: expected %d results, got %d", name, len(items), len(resp.Results))
				}
				if allOrNone && firstBad >= 0 {
					if len(resp.Results) != firstBad+1 {
						t.Fatalf("%s: expected %d results, got %d", name, firstBad+1, len(resp.Results))
					}
					if len(s.rollbacks) != 1 || !reflect.DeepEqual(s.rollbacks[0], items[:firstBad+1]) {
						t.Fatalf("%s: expected one rollback of %v, got %v", name, items[:firstBad+1], s.rollbacks)
					}
				}
				if resp.Success != (!hasFailure && len(resp.Results) == len(items)) {
					t.Fatalf("%s: success=%v inconsistent with results %+v", name, resp.Success, resp.Results)
				}
				if resp.Success != resp.Complete(len(items)) {
					t.Fatalf("%s: Complete disagrees with success", name)
				}
				rolledBack := len(s.rollbacks) > 0
				if rolledBack != (allOrNone && !resp.Success) {
					t.Fatalf("%s: rollback=%v but all_or_none=%v success=%v", name, rolledBack, allOrNone, resp.Success)
				}
				for v := range bad {
					if c := callsFor(s, v); c != 0 && c != retries {
						t.Fatalf("%s: item %d attempted %d times, want %d", name, v, c, retries)
					}
				}
				for _, v := range items {
					if !bad[v] && callsFor(s, v) > 1 {
						t.Fatalf("%s: succeeding item %d retried", name, v)
					}
				}
				for i, o := range resp.Results {
					if o.OK && o.Value != items[i]*10 {
						t.Fatalf("%s: result %d out of order: %+v", name, i, o)
					}
				}
			}
		}
	}
}

func TestRun_RollbackErrorKeepsVerdict(t *testing.T) {
	t.Parallel()

	s := &spy[int, int]{inner: failSet(map[int]bool{1: true}), rbErr: errors.Join(errors.New("undo 0"), errors.New("undo 1"))}
	obs := &stats{}
	resp := New[int, int](s, WithObserver(obs)).Run(context.Background(), request([]int{0, 1, 2}, true, 2))

	if resp.Success {
		t.Fatalf("rollback failure must not flip success")
	}
	if len(s.rollbacks) != 1 {
		t.Fatalf("expected a single rollback, got %d", len(s.rollbacks))
	}
	if obs.rollbacks != 1 || obs.pipelines != 1 || obs.lastSuccess {
		t.Fatalf("unexpected observer counts: %+v", obs)
	}
	if obs.items != 2 || obs.ok != 1 || obs.attempts != 3 {
		t.Fatalf("expected 2 items (1 ok) over 3 attempts, got %+v", obs)
	}
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	seen := map[string]int{}
	c := capability.Func[string, int]{HandleFunc: func(_ context.Context, s string) (int, error) {
		seen[s]++
		if seen[s] < 3 {
			return 0, errors.New("transient")
		}
		return len(s), nil
	}}

	resp := New[string, int](c).Run(context.Background(), request([]string{"abc", "de"}, true, 3))
	if !resp.Success || resp.Results[0].Value != 3 || resp.Results[1].Value != 2 {
		t.Fatalf("expected both items to succeed on the third try, got %+v", resp)
	}
}

func TestRun_InvalidRequestRejected(t *testing.T) {
	t.Parallel()

	s := &spy[string, string]{inner: alwaysFail[string]()}
	e := New[string, string](s)

	cases := map[string]envelope.Request[string]{
		"zero retries":   {Items: []string{"a"}, CorrelationID: "id", MaxRetries: 0},
		"missing items":  {CorrelationID: "id", MaxRetries: 1, AllOrNone: true},
		"missing corrid": {Items: []string{"a"}, MaxRetries: 1},
	}
	for name, req := range cases {
		resp := e.Run(context.Background(), req)
		if resp.Success || resp.Error == "" || len(resp.Results) != 0 {
			t.Fatalf("%s: expected rejection, got %+v", name, resp)
		}
	}
	if len(s.calls) != 0 || len(s.rollbacks) != 0 {
		t.Fatalf("rejected requests must not reach the capability")
	}
}

func TestRun_EchoesCorrelation(t *testing.T) {
	t.Parallel()

	req := request([]int{1}, true, 2)
	req.Pipeline = "numbers"
	resp := New[int, int](failSet(nil)).Run(context.Background(), req)

	if resp.CorrelationID != req.CorrelationID || !resp.AllOrNone || resp.MaxRetries != 2 || resp.Pipeline != "numbers" {
		t.Fatalf("correlation fields not echoed: %+v", resp)
	}
}

func TestRun_IndependentInvocations(t *testing.T) {
	t.Parallel()

	e := New[int, int](failSet(map[int]bool{2: true}))
	first := e.Run(context.Background(), request([]int{1, 2}, false, 1))
	second := e.Run(context.Background(), request([]int{3}, false, 1))

	if len(first.Results) != 2 || len(first.Failures) != 1 {
		t.Fatalf("unexpected first response: %+v", first)
	}
	if len(second.Results) != 1 || len(second.Failures) != 0 || !second.Success {
		t.Fatalf("second run leaked state from the first: %+v", second)
	}
}
