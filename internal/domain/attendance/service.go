package attendance

import (
	"context"
	"time"

	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
)

// Reconciler turns one resolved scan event into a ledger transition. Live
// capture, catch-up replay, and manual bulk sync all go through the same
// implementation so debounce and slot ordering hold uniformly.
type Reconciler interface {
	Reconcile(ctx context.Context, ref employee.Identity, ts time.Time, deviceLabel string) (Outcome, error)
}
