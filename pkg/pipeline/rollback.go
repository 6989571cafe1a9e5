package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ib-77/txpipe/pkg/capability"
	"github.com/ib-77/txpipe/pkg/rop"
)

// Rollback asks c to undo processed. Failures are logged one by one and
// returned for bookkeeping only; callers must not let them change the
// pipeline's verdict.
func Rollback[I, V any](ctx context.Context, processed []I, c capability.Capability[I, V], logger *zap.Logger) error {
	err := c.Rollback(ctx, processed)
	if err == nil {
		logger.Info("rollback complete", zap.Int("items", len(processed)))
		return nil
	}

	for _, e := range rop.GetErrors(err) {
		logger.Error("rollback incomplete", zap.Int("items", len(processed)), zap.Error(e))
	}
	return err
}
