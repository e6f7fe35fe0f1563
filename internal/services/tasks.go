package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tasktracker/internal/models"
	"tasktracker/internal/store"

	"github.com/gofrs/uuid"
)

// SortKey names the listing orders exposed to callers.
type SortKey string

const (
	SortCreatedDesc        SortKey = "createdDesc"
	SortDueAsc             SortKey = "dueAsc"
	SortPriorityDescDueAsc SortKey = "priorityDescThenDueAsc"
)

type RegisterUserInput struct {
	Email          string
	CredentialHash string
	DisplayName    string
	Settings       *models.UserSettings
}

type CreateTaskInput struct {
	UserID           uuid.UUID
	Title            string
	Description      string
	Priority         *int
	EstimatedMinutes *int
	DueAt            *time.Time
	Tags             []string
	ParentID         *uuid.UUID
}

type ListOptions struct {
	RootOnly  bool
	Completed *bool
	Sort      SortKey
	Limit     int
}

type TaskService interface {
	RegisterUser(ctx context.Context, input RegisterUserInput) (models.User, error)
	CreateTask(ctx context.Context, input CreateTaskInput) (models.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (models.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, patch store.TaskPatch) (models.Task, error)
	SetCompleted(ctx context.Context, id uuid.UUID, completed bool) (models.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID, cascade bool) (int64, error)
	ListTasks(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Task, error)
	ListSubtasks(ctx context.Context, parentID uuid.UUID) ([]models.Task, error)
	SearchTasks(ctx context.Context, userID uuid.UUID, query string) ([]models.Task, error)
}

type taskService struct {
	store *store.Store
}

func NewTaskService(st *store.Store) TaskService {
	return &taskService{store: st}
}

func (s *taskService) RegisterUser(ctx context.Context, input RegisterUserInput) (models.User, error) {
	user := models.User{
		Email:          input.Email,
		CredentialHash: input.CredentialHash,
		DisplayName:    input.DisplayName,
		Settings:       input.Settings,
		Status:         models.UserStatusActive,
	}
	if _, err := s.store.InsertUser(ctx, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// CreateTask validates the input and, when a parent is named, inherits
// priority, due date and tags from it. A caller-supplied user id never wins
// over the parent's owner.
func (s *taskService) CreateTask(ctx context.Context, input CreateTaskInput) (models.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return models.Task{}, fmt.Errorf("%w: title is required", store.ErrValidation)
	}

	task := models.Task{
		UserID:           input.UserID,
		ParentID:         input.ParentID,
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		EstimatedMinutes: input.EstimatedMinutes,
		DueAt:            input.DueAt,
		Tags:             input.Tags,
		Completed:        false,
		CompletedAt:      nil,
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}

	if input.ParentID != nil {
		parent, err := s.store.FindTaskByID(ctx, *input.ParentID)
		if err != nil {
			return models.Task{}, err
		}
		task.UserID = parent.UserID
		if input.Priority == nil {
			task.Priority = parent.Priority
		}
		if input.DueAt == nil {
			task.DueAt = parent.DueAt
		}
		// The parent's tag sequence is the base; caller tags are appended
		// as extra markers, skipping duplicates.
		inherited := append([]string{}, parent.Tags...)
		for _, tag := range input.Tags {
			if !containsTag(inherited, tag) {
				inherited = append(inherited, tag)
			}
		}
		task.Tags = inherited
	}

	if _, err := s.store.InsertTask(ctx, &task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *taskService) GetTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	return s.store.FindTaskByID(ctx, id)
}

// UpdateTask applies field edits. Completion flips go through SetCompleted so
// the completed/completedAt pair cannot be patched apart.
func (s *taskService) UpdateTask(ctx context.Context, id uuid.UUID, patch store.TaskPatch) (models.Task, error) {
	patch.Completed = nil
	return s.store.UpdateTask(ctx, id, patch)
}

func (s *taskService) SetCompleted(ctx context.Context, id uuid.UUID, completed bool) (models.Task, error) {
	return s.store.UpdateTask(ctx, id, store.TaskPatch{Completed: &completed})
}

func (s *taskService) DeleteTask(ctx context.Context, id uuid.UUID, cascade bool) (int64, error) {
	return s.store.DeleteTask(ctx, id, cascade)
}

func (s *taskService) ListTasks(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Task, error) {
	sortKey, err := storeSort(opts.Sort)
	if err != nil {
		return nil, err
	}
	filter := store.TaskFilter{
		UserID:    userID,
		RootOnly:  opts.RootOnly,
		Completed: opts.Completed,
	}
	return s.store.QueryTasks(ctx, filter, sortKey, opts.Limit)
}

// ListSubtasks returns the direct children of a task, oldest first. A missing
// parent yields an empty sequence, not an error: after a cascade delete every
// former child id resolves to nothing.
func (s *taskService) ListSubtasks(ctx context.Context, parentID uuid.UUID) ([]models.Task, error) {
	parent, err := s.store.FindTaskByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []models.Task{}, nil
		}
		return nil, err
	}
	filter := store.TaskFilter{UserID: parent.UserID, ParentID: &parentID}
	return s.store.QueryTasks(ctx, filter, store.SortCreatedAsc, 0)
}

const (
	titleWeight       = 5
	descriptionWeight = 1
)

// SearchTasks ranks the user's tasks against the query terms. Per term a
// title match scores titleWeight and a description match descriptionWeight,
// so any title hit outranks a description-only hit. Ties break by most
// recent CreatedAt, then by id bytes, keeping the order deterministic.
func (s *taskService) SearchTasks(ctx context.Context, userID uuid.UUID, query string) ([]models.Task, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []models.Task{}, nil
	}

	candidates, err := s.store.SearchCandidates(ctx, userID, terms)
	if err != nil {
		return nil, err
	}

	type scored struct {
		task  models.Task
		score int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, task := range candidates {
		score := scoreTask(&task, terms)
		if score > 0 {
			ranked = append(ranked, scored{task: task, score: score})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].task.CreatedAt.Equal(ranked[j].task.CreatedAt) {
			return ranked[i].task.CreatedAt.After(ranked[j].task.CreatedAt)
		}
		return bytes.Compare(ranked[i].task.ID.Bytes(), ranked[j].task.ID.Bytes()) < 0
	})

	results := make([]models.Task, len(ranked))
	for i, r := range ranked {
		results[i] = r.task
	}
	return results, nil
}

func scoreTask(task *models.Task, terms []string) int {
	title := strings.ToLower(task.Title)
	description := strings.ToLower(task.Description)

	score := 0
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += titleWeight
		}
		if strings.Contains(description, term) {
			score += descriptionWeight
		}
	}
	return score
}

func storeSort(key SortKey) (store.TaskSort, error) {
	switch key {
	case SortCreatedDesc, "":
		return store.SortCreatedDesc, nil
	case SortDueAsc:
		return store.SortDueAsc, nil
	case SortPriorityDescDueAsc:
		return store.SortPriorityDueAsc, nil
	}
	return "", fmt.Errorf("%w: unknown sort key %q", store.ErrValidation, key)
}

func containsTag(tags []string, tag string) bool {
	for _, existing := range tags {
		if existing == tag {
			return true
		}
	}
	return false
}
