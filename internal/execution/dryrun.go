// internal/execution/dryrun.go
package execution

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/orders"
)

// DryRunExecutor logs execution requests and reports success without trading.
type DryRunExecutor struct {
	logger *zap.Logger
}

func NewDryRunExecutor(logger *zap.Logger) *DryRunExecutor {
	return &DryRunExecutor{logger: logger.Named("dry_run")}
}

func (x *DryRunExecutor) Execute(ctx context.Context, req orders.ExecutionRequest) (orders.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return orders.ExecutionResult{}, err
	}
	ref := "dry-run-" + uuid.New().String()
	x.logger.Info("Dry run: order would be executed",
		zap.String("order_id", req.OrderID),
		zap.String("kind", string(req.Kind)),
		zap.String("mint", req.Mint),
		zap.String("amount", req.Amount.String()),
		zap.String("observed_price", req.ObservedPrice.String()),
		zap.String("execution_ref", ref))
	return orders.ExecutionResult{Success: true, ExecutionRef: ref}, nil
}
