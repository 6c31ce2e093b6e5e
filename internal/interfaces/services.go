package interfaces

import (
	"context"

	"github.com/bobmcallan/ledgerd/internal/models"
)

// Processor drives the ordered sync pipeline for one provider. Each
// provider integration registers one implementation.
type Processor interface {
	Name() string
	Process(ctx context.Context, sync *models.Sync) error
}

// BalanceScheduler schedules downstream balance recomputation for
// accounts touched by a sync. The actual calculation job is an external
// collaborator; failures are logged, never escalated.
type BalanceScheduler interface {
	ScheduleRecalc(ctx context.Context, accountIDs []string) error
}
