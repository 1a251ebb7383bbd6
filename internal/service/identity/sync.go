package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/device"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
)

// SyncEnrolled reconciles a terminal's enrollment list against the employee
// table: unknown badge codes are inserted, and placeholder display names are
// replaced when the terminal knows a real name. Returns (created, renamed).
func (r *Resolver) SyncEnrolled(ctx context.Context, users []device.EnrolledUser) (int, int, error) {
	if len(users) == 0 {
		return 0, 0, nil
	}

	identities, err := r.employeeRepo.ListIdentities(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list employees for enrollment sync: %w", err)
	}
	existing := make(map[string]employee.Identity, len(identities))
	for _, id := range identities {
		existing[id.BadgeCode] = id
	}

	branchID, err := r.defaultBranchID(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve default branch: %w", err)
	}

	created, renamed := 0, 0
	for _, user := range users {
		deviceName := strings.TrimSpace(user.Name)

		current, ok := existing[user.BadgeCode]
		if ok {
			if deviceName != "" && isPlaceholderName(current.Name) && current.Name != deviceName {
				if err := r.employeeRepo.UpdateName(ctx, current.EmployeeID, deviceName); err != nil {
					slog.Error("Failed to update employee name", "badge_code", user.BadgeCode, "error", err)
					continue
				}
				renamed++
			}
			continue
		}

		name := deviceName
		if name == "" {
			name = "Staff " + user.BadgeCode
		}
		avatar := "https://api.dicebear.com/7.x/avataaars/svg?seed=" + user.BadgeCode
		newEmp := employee.Employee{
			ID:         uuid.NewString(),
			Name:       name,
			BadgeCode:  user.BadgeCode,
			Position:   "STAFF",
			Status:     employee.StatusActive,
			JoinedDate: time.Now(),
			BranchID:   branchID,
			AvatarURL:  &avatar,
		}
		if _, err := r.employeeRepo.Create(ctx, newEmp); err != nil {
			if errors.Is(err, employee.ErrDuplicateBadgeCode) {
				continue
			}
			slog.Error("Failed to insert enrolled user", "badge_code", user.BadgeCode, "error", err)
			continue
		}
		created++
	}

	if created > 0 || renamed > 0 {
		slog.Info("Enrollment sync applied", "created", created, "renamed", renamed)
		if err := r.Refresh(ctx); err != nil {
			return created, renamed, fmt.Errorf("refresh after enrollment sync: %w", err)
		}
	}

	return created, renamed, nil
}

// isPlaceholderName reports whether a display name was generated by
// auto-provisioning and may be replaced by the terminal's real name.
func isPlaceholderName(name string) bool {
	return name == "" ||
		strings.HasPrefix(name, "Staff ") ||
		strings.HasPrefix(name, "Worker ") ||
		strings.HasPrefix(name, "Scanner User ")
}
