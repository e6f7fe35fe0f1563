package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasktracker/internal/config"
	"tasktracker/internal/models"
	"tasktracker/internal/monitoring"

	"github.com/gofrs/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TaskSort selects one of the supported orderings for QueryTasks. Rows with a
// null due_at always sort last within due-date orderings.
type TaskSort string

const (
	SortCreatedAsc     TaskSort = "created_asc"
	SortCreatedDesc    TaskSort = "created_desc"
	SortDueAsc         TaskSort = "due_asc"
	SortPriorityDueAsc TaskSort = "priority_desc_due_asc"
)

// TaskFilter is a conjunction of predicates. UserID is always required;
// RootOnly and ParentID are mutually exclusive parent predicates.
type TaskFilter struct {
	UserID    uuid.UUID
	RootOnly  bool
	ParentID  *uuid.UUID
	Completed *bool
	DueFrom   *time.Time
	DueTo     *time.Time
}

// TaskPatch carries the mutable task fields. Nil pointers leave the field
// untouched. UserID, ParentID and CreatedAt are immutable and deliberately
// absent. Setting Completed also sets or clears CompletedAt in the same
// UPDATE statement.
type TaskPatch struct {
	Title            *string
	Description      *string
	Priority         *int
	EstimatedMinutes *int
	DueAt            *time.Time
	ClearDueAt       bool
	Tags             *[]string
	Completed        *bool
}

type Store struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
	metrics    *monitoring.StoreMetrics
}

// New wraps an already-open gorm handle. Used by tests with in-memory sqlite.
func New(db *gorm.DB) (*Store, error) {
	s := &Store{
		db:         db,
		maxRetries: 3,
		backoff:    50 * time.Millisecond,
		metrics:    monitoring.NewStoreMetrics(),
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects using the configured driver, applies pool limits and runs
// migrations. Repeated startups converge: migration and index creation are
// both idempotent.
func Open(cfg *config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.URL)
	default:
		dsn := cfg.Database.URL
		if !strings.Contains(dsn, "dbname=") && !strings.HasPrefix(dsn, "postgres://") {
			dsn = fmt.Sprintf("%s dbname=%s", dsn, cfg.Database.Name)
		}
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	s, err := New(db)
	if err != nil {
		return nil, err
	}
	s.maxRetries = cfg.Database.MaxRetries
	s.backoff = cfg.Database.RetryBackoff
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&models.User{}, &models.Task{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_users_created ON users(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_parent_created ON tasks(user_id, parent_id, created_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_completed_created ON tasks(user_id, completed, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_completed_due ON tasks(user_id, completed, due_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_completed_priority_due ON tasks(user_id, completed, priority DESC, due_at ASC)`,
	}
	for _, ddl := range indexes {
		if err := s.db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	// Weighted text search index, title over description. Postgres only;
	// other engines fall back to the LIKE scan in SearchCandidates.
	if s.db.Dialector.Name() == "postgres" {
		ddl := `CREATE INDEX IF NOT EXISTS idx_tasks_text_search ON tasks USING GIN ((
			setweight(to_tsvector('simple', coalesce(title, '')), 'A') ||
			setweight(to_tsvector('simple', coalesce(description, '')), 'D')
		))`
		if err := s.db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("create text search index: %w", err)
		}
	}
	return nil
}

func (s *Store) Metrics() *monitoring.StoreMetrics {
	return s.metrics
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

// withRetry re-runs fn for connection-level failures only. Validation,
// conflict and not-found errors propagate immediately.
func (s *Store) withRetry(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Record(op, time.Since(start), err)
	}()

	backoff := s.backoff
	for attempt := 0; ; attempt++ {
		err = wrapErr(fn(s.db.WithContext(ctx)))
		if err == nil || !errors.Is(err, ErrUnavailable) || attempt >= s.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			err = wrapErr(ctx.Err())
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// InsertUser stores a new user. The email is lowercased before the
// uniqueness check so the unique index is effectively case-insensitive.
func (s *Store) InsertUser(ctx context.Context, user *models.User) (uuid.UUID, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return uuid.Nil, validationErr("email is required")
	}
	if user.CredentialHash == "" {
		return uuid.Nil, validationErr("credential hash is required")
	}
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}
	if user.Status != models.UserStatusActive && user.Status != models.UserStatusDisabled {
		return uuid.Nil, validationErr("unknown status %q", user.Status)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate user id: %w", err)
	}
	user.ID = id
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err = s.withRetry(ctx, "insert_user", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return conflictErr("email %s already registered", user.Email)
			}
			return tx.Create(user).Error
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	err := s.withRetry(ctx, "find_user_by_email", func(tx *gorm.DB) error {
		return tx.Where("email = ?", email).First(&user).Error
	})
	return user, err
}

func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	err := s.withRetry(ctx, "find_user_by_id", func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).First(&user).Error
	})
	return user, err
}

// RecordLogin stamps last_login_at. Called by the authentication
// collaborator, which owns the credential check itself.
func (s *Store) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.withRetry(ctx, "record_login", func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return nil
	})
}

// InsertTask stores a new task. Referential checks on ParentID run inside
// the same transaction as the insert, so a parent cannot vanish in between.
func (s *Store) InsertTask(ctx context.Context, task *models.Task) (uuid.UUID, error) {
	if task.UserID == uuid.Nil {
		return uuid.Nil, validationErr("user id is required")
	}
	if strings.TrimSpace(task.Title) == "" {
		return uuid.Nil, validationErr("title is required")
	}
	if task.Priority == 0 {
		task.Priority = models.PriorityDefault
	}
	if task.Priority < models.PriorityMin || task.Priority > models.PriorityMax {
		return uuid.Nil, validationErr("priority %d out of range [%d,%d]", task.Priority, models.PriorityMin, models.PriorityMax)
	}
	if task.EstimatedMinutes != nil && *task.EstimatedMinutes < 0 {
		return uuid.Nil, validationErr("estimated minutes must be non-negative")
	}
	if task.Completed && task.CompletedAt == nil {
		return uuid.Nil, validationErr("completed task requires completed_at")
	}
	if !task.Completed && task.CompletedAt != nil {
		return uuid.Nil, validationErr("open task must not carry completed_at")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate task id: %w", err)
	}
	task.ID = id
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt
	if task.Tags == nil {
		task.Tags = []string{}
	}

	err = s.withRetry(ctx, "insert_task", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if task.ParentID != nil {
				var parent models.Task
				if err := tx.Where("id = ?", *task.ParentID).First(&parent).Error; err != nil {
					return err
				}
				if parent.UserID != task.UserID {
					return conflictErr("parent task belongs to a different user")
				}
			}
			return tx.Create(task).Error
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return task.ID, nil
}

func (s *Store) FindTaskByID(ctx context.Context, id uuid.UUID) (models.Task, error) {
	var task models.Task
	err := s.withRetry(ctx, "find_task_by_id", func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).First(&task).Error
	})
	return task, err
}

// QueryTasks runs a conjunctive filter with one of the supported orderings.
// A zero limit means no limit.
func (s *Store) QueryTasks(ctx context.Context, filter TaskFilter, sort TaskSort, limit int) ([]models.Task, error) {
	if filter.UserID == uuid.Nil {
		return nil, validationErr("filter requires a user id")
	}
	order, err := orderClause(sort)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	err = s.withRetry(ctx, "query_tasks", func(tx *gorm.DB) error {
		q := tx.Where("user_id = ?", filter.UserID)
		if filter.RootOnly {
			q = q.Where("parent_id IS NULL")
		} else if filter.ParentID != nil {
			q = q.Where("parent_id = ?", *filter.ParentID)
		}
		if filter.Completed != nil {
			q = q.Where("completed = ?", *filter.Completed)
		}
		if filter.DueFrom != nil {
			q = q.Where("due_at >= ?", *filter.DueFrom)
		}
		if filter.DueTo != nil {
			q = q.Where("due_at <= ?", *filter.DueTo)
		}
		q = q.Order(order)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&tasks).Error
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func orderClause(sort TaskSort) (string, error) {
	switch sort {
	case SortCreatedAsc:
		return "created_at ASC", nil
	case SortCreatedDesc, "":
		return "created_at DESC", nil
	case SortDueAsc:
		return "due_at IS NULL, due_at ASC, created_at DESC", nil
	case SortPriorityDueAsc:
		return "priority DESC, due_at IS NULL, due_at ASC, created_at DESC", nil
	}
	return "", validationErr("unknown sort %q", sort)
}

// UpdateTask applies a patch as a single UPDATE. The completed/completed_at
// pair and updated_at always travel in the same statement.
func (s *Store) UpdateTask(ctx context.Context, id uuid.UUID, patch TaskPatch) (models.Task, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return models.Task{}, validationErr("title must not be empty")
	}
	if patch.Priority != nil && (*patch.Priority < models.PriorityMin || *patch.Priority > models.PriorityMax) {
		return models.Task{}, validationErr("priority %d out of range [%d,%d]", *patch.Priority, models.PriorityMin, models.PriorityMax)
	}
	if patch.EstimatedMinutes != nil && *patch.EstimatedMinutes < 0 {
		return models.Task{}, validationErr("estimated minutes must be non-negative")
	}
	if patch.DueAt != nil && patch.ClearDueAt {
		return models.Task{}, validationErr("due date cannot be both set and cleared")
	}

	var task models.Task
	err := s.withRetry(ctx, "update_task", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
				return err
			}

			now := time.Now().UTC()
			if patch.Title != nil {
				task.Title = strings.TrimSpace(*patch.Title)
			}
			if patch.Description != nil {
				task.Description = *patch.Description
			}
			if patch.Priority != nil {
				task.Priority = *patch.Priority
			}
			if patch.EstimatedMinutes != nil {
				task.EstimatedMinutes = patch.EstimatedMinutes
			}
			if patch.DueAt != nil {
				task.DueAt = patch.DueAt
			}
			if patch.ClearDueAt {
				task.DueAt = nil
			}
			if patch.Tags != nil {
				task.Tags = *patch.Tags
			}
			if patch.Completed != nil && *patch.Completed != task.Completed {
				task.Completed = *patch.Completed
				if task.Completed {
					completedAt := now
					task.CompletedAt = &completedAt
				} else {
					task.CompletedAt = nil
				}
			}
			task.UpdatedAt = now

			return tx.Save(&task).Error
		})
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task. With cascade it removes the whole subtree in one
// transaction, so concurrent readers never observe a partially deleted tree;
// without cascade it refuses when children exist.
func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID, cascade bool) (int64, error) {
	var deleted int64
	err := s.withRetry(ctx, "delete_task", func(tx *gorm.DB) error {
		deleted = 0
		return tx.Transaction(func(tx *gorm.DB) error {
			var task models.Task
			if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
				return err
			}

			var children int64
			if err := tx.Model(&models.Task{}).Where("parent_id = ?", id).Count(&children).Error; err != nil {
				return err
			}
			if children > 0 && !cascade {
				return conflictErr("task %s has %d children; delete with cascade or remove them first", id, children)
			}

			ids, err := collectSubtree(tx, id)
			if err != nil {
				return err
			}
			result := tx.Where("id IN ?", ids).Delete(&models.Task{})
			if result.Error != nil {
				return result.Error
			}
			deleted = result.RowsAffected
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// collectSubtree gathers the task and every transitive descendant,
// breadth-first over parent_id.
func collectSubtree(tx *gorm.DB, root uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{root}
	frontier := []uuid.UUID{root}
	for len(frontier) > 0 {
		var children []models.Task
		if err := tx.Select("id").Where("parent_id IN ?", frontier).Find(&children).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, child := range children {
			ids = append(ids, child.ID)
			frontier = append(frontier, child.ID)
		}
	}
	return ids, nil
}

// DeleteTasksByTag removes every task of a user carrying the tag, together
// with each matched task's subtree, in one transaction. Cascading keeps a
// child that lost the tag from ending up with a dangling parent. The seeder
// relies on this for idempotent re-runs.
func (s *Store) DeleteTasksByTag(ctx context.Context, userID uuid.UUID, tag string) (int64, error) {
	if userID == uuid.Nil {
		return 0, validationErr("user id is required")
	}
	if tag == "" {
		return 0, validationErr("tag is required")
	}

	var deleted int64
	err := s.withRetry(ctx, "delete_tasks_by_tag", func(tx *gorm.DB) error {
		deleted = 0
		return tx.Transaction(func(tx *gorm.DB) error {
			// Tags are stored as a JSON array; the quoted form matches whole
			// elements only.
			var matched []models.Task
			if err := tx.Select("id").Where("user_id = ? AND tags LIKE ?", userID, `%"`+tag+`"%`).Find(&matched).Error; err != nil {
				return err
			}
			if len(matched) == 0 {
				return nil
			}

			seen := make(map[uuid.UUID]bool, len(matched))
			frontier := make([]uuid.UUID, 0, len(matched))
			for _, task := range matched {
				seen[task.ID] = true
				frontier = append(frontier, task.ID)
			}
			for len(frontier) > 0 {
				var children []models.Task
				if err := tx.Select("id").Where("parent_id IN ?", frontier).Find(&children).Error; err != nil {
					return err
				}
				frontier = frontier[:0]
				for _, child := range children {
					if seen[child.ID] {
						continue
					}
					seen[child.ID] = true
					frontier = append(frontier, child.ID)
				}
			}

			ids := make([]uuid.UUID, 0, len(seen))
			for id := range seen {
				ids = append(ids, id)
			}
			result := tx.Where("id IN ?", ids).Delete(&models.Task{})
			if result.Error != nil {
				return result.Error
			}
			deleted = result.RowsAffected
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// SearchCandidates returns the user's tasks matching any term in title or
// description, case-insensitively. Ranking is the service's concern.
func (s *Store) SearchCandidates(ctx context.Context, userID uuid.UUID, terms []string) ([]models.Task, error) {
	if userID == uuid.Nil {
		return nil, validationErr("user id is required")
	}
	if len(terms) == 0 {
		return []models.Task{}, nil
	}

	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, 2*len(terms))
	for _, term := range terms {
		pattern := "%" + strings.ToLower(term) + "%"
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	condition := "(" + strings.Join(clauses, " OR ") + ")"

	var tasks []models.Task
	err := s.withRetry(ctx, "search_candidates", func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).Where(condition, args...).Find(&tasks).Error
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
