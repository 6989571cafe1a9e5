package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ib-77/txpipe/pkg/rop"
)

var ErrUndecodable = errors.New("item does not match the pipeline's item type")

// Adapt serves a typed capability from untyped items, such as those decoded
// off the wire. Items are converted with mapstructure using their json
// field names; an item that cannot be converted fails like any other
// handler error. During rollback such items are skipped since Handle never
// reached them.
func Adapt[I, V any](c Capability[I, V]) Capability[any, any] {
	return adapted[I, V]{inner: c}
}

type adapted[I, V any] struct {
	inner Capability[I, V]
}

func (a adapted[I, V]) Handle(ctx context.Context, item any) (any, error) {
	typed, err := decodeItem[I](item)
	if err != nil {
		return nil, err
	}
	return a.inner.Handle(ctx, typed)
}

func (a adapted[I, V]) Rollback(ctx context.Context, items []any) error {
	typed := make([]I, 0, len(items))
	for _, item := range items {
		t, err := decodeItem[I](item)
		if err != nil {
			continue
		}
		typed = append(typed, t)
	}
	return a.inner.Rollback(ctx, typed)
}

func decodeItem[I any](item any) (I, error) {
	var out I
	if rop.IsNil(item) {
		return out, fmt.Errorf("%w: nil item", ErrUndecodable)
	}
	if t, ok := item.(I); ok {
		return t, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &out,
		TagName:     "json",
		ErrorUnused: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(item); err != nil {
		return out, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return out, nil
}
