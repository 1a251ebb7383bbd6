package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/branch"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/database"
)

type branchRepository struct {
	db *database.DB
}

func NewBranchRepository(db *database.DB) branch.BranchRepository {
	return &branchRepository{db: db}
}

// GetByID implements branch.BranchRepository.
func (b *branchRepository) GetByID(ctx context.Context, id string) (*branch.Branch, error) {
	query := `
		SELECT id, name, location
		FROM branches
		WHERE id = $1
	`

	var br branch.Branch
	err := b.db.QueryRow(ctx, query, id).Scan(&br.ID, &br.Name, &br.Location)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get branch %s: %w", id, err)
	}

	return &br, nil
}

// First implements branch.BranchRepository.
func (b *branchRepository) First(ctx context.Context) (*branch.Branch, error) {
	query := `
		SELECT id, name, location
		FROM branches
		ORDER BY id
		LIMIT 1
	`

	var br branch.Branch
	err := b.db.QueryRow(ctx, query).Scan(&br.ID, &br.Name, &br.Location)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get first branch: %w", err)
	}

	return &br, nil
}

// Create implements branch.BranchRepository.
func (b *branchRepository) Create(ctx context.Context, newBranch branch.Branch) (branch.Branch, error) {
	query := `
		INSERT INTO branches (id, name, location)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := b.db.QueryRow(ctx, query, newBranch.ID, newBranch.Name, newBranch.Location).Scan(&newBranch.ID)
	if err != nil {
		return branch.Branch{}, fmt.Errorf("failed to create branch: %w", err)
	}

	return newBranch, nil
}
