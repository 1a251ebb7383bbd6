package branch

import "context"

// BranchRepository reads and seeds the organizational units employees are
// provisioned into.
type BranchRepository interface {
	// GetByID returns (nil, nil) when the branch does not exist.
	GetByID(ctx context.Context, id string) (*Branch, error)

	// First returns any existing branch, or (nil, nil) when the table is empty.
	First(ctx context.Context) (*Branch, error)

	Create(ctx context.Context, b Branch) (Branch, error)
}
