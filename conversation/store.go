package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lyrebirdhq/linescribe/db/models"
	"gorm.io/gorm"
)

var (
	// ErrIdentityNotFound is returned when no identity matches a platform id.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrDuplicateLineID is returned when a create collides with the unique
	// platform-id index. The resolver treats it as "someone else won the
	// race" and re-fetches.
	ErrDuplicateLineID = errors.New("duplicate line id")
)

const (
	// TaskOrderNewest sorts by creation time descending.
	TaskOrderNewest = "created_at desc"
	// TaskOrderPriority sorts by priority descending, newest first within a
	// priority.
	TaskOrderPriority = "priority desc, created_at desc"
)

// Store is the gorm-backed persistence layer for identities, messages and
// tasks.
type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, fmt.Errorf("nil db")
	}
	return &Store{db: gdb}, nil
}

func (s *Store) FindIdentityByLineID(ctx context.Context, lineID string) (*models.Identity, error) {
	var id models.Identity
	err := s.db.WithContext(ctx).Where("line_id = ?", lineID).First(&id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Store) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	err := s.db.WithContext(ctx).Create(identity).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateLineID
	}
	return err
}

// UpdateIdentityProfile opportunistically refreshes display name and avatar.
// Empty values are left untouched.
func (s *Store) UpdateIdentityProfile(ctx context.Context, identityID, displayName, avatarURL string) error {
	updates := map[string]any{}
	if strings.TrimSpace(displayName) != "" {
		updates["display_name"] = displayName
	}
	if strings.TrimSpace(avatarURL) != "" {
		updates["avatar_url"] = avatarURL
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Identity{}).
		Where("id = ?", identityID).
		Updates(updates).Error
}

// ListIdentities returns all identities, optionally filtered by kind.
func (s *Store) ListIdentities(ctx context.Context, kind string) ([]models.Identity, error) {
	q := s.db.WithContext(ctx).Order("created_at asc")
	if strings.TrimSpace(kind) != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []models.Identity
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	return s.db.WithContext(ctx).Create(task).Error
}

// CountTasks counts tasks for an identity; an empty status counts all.
func (s *Store) CountTasks(ctx context.Context, identityID, status string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Task{}).Where("identity_id = ?", identityID)
	if strings.TrimSpace(status) != "" {
		q = q.Where("status = ?", status)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// ListTasks returns tasks for an identity filtered by status, with the given
// order clause and limit.
func (s *Store) ListTasks(ctx context.Context, identityID, status, order string, limit int) ([]models.Task, error) {
	if order == "" {
		order = TaskOrderNewest
	}
	q := s.db.WithContext(ctx).Where("identity_id = ?", identityID)
	if strings.TrimSpace(status) != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Task
	if err := q.Order(order).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
