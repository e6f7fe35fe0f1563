package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"tasktracker/internal/cache"
	"tasktracker/internal/models"
	"tasktracker/internal/store"

	"github.com/gofrs/uuid"
)

const (
	taskTTL     = 30 * time.Minute
	listTTL     = 10 * time.Minute
	subtasksTTL = 10 * time.Minute
	searchTTL   = 5 * time.Minute
)

// CachedTaskService decorates a TaskService with read-through caching. Reads
// of single tasks, listings, subtree queries and searches hit the cache;
// every mutation invalidates the task key plus the owner's derived keys.
type CachedTaskService struct {
	tasks  TaskService
	cache  *cache.MultiLevelCache
	warmer *cache.Warmer
}

func NewCachedTaskService(tasks TaskService, cacheInstance *cache.MultiLevelCache) *CachedTaskService {
	return &CachedTaskService{
		tasks:  tasks,
		cache:  cacheInstance,
		warmer: cache.NewWarmer(cacheInstance, 5*time.Minute),
	}
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id)
}

func listKey(userID uuid.UUID, opts ListOptions) string {
	completed := "any"
	if opts.Completed != nil {
		completed = fmt.Sprintf("%t", *opts.Completed)
	}
	return fmt.Sprintf("user_tasks:%s:%t:%s:%s:%d", userID, opts.RootOnly, completed, opts.Sort, opts.Limit)
}

func subtasksKey(parentID uuid.UUID) string {
	return fmt.Sprintf("subtasks:%s", parentID)
}

func searchKey(userID uuid.UUID, query string) string {
	return fmt.Sprintf("search:%s:%s", userID, query)
}

func (s *CachedTaskService) invalidateUser(userID uuid.UUID) {
	patterns := []string{
		fmt.Sprintf("user_tasks:%s:*", userID),
		fmt.Sprintf("search:%s:*", userID),
		"subtasks:*",
	}
	for _, pattern := range patterns {
		if err := s.cache.DeletePattern(pattern); err != nil {
			log.Printf("invalidate %s: %v", pattern, err)
		}
	}
}

func (s *CachedTaskService) RegisterUser(ctx context.Context, input RegisterUserInput) (models.User, error) {
	return s.tasks.RegisterUser(ctx, input)
}

func (s *CachedTaskService) CreateTask(ctx context.Context, input CreateTaskInput) (models.Task, error) {
	task, err := s.tasks.CreateTask(ctx, input)
	if err != nil {
		return models.Task{}, err
	}
	s.cache.Set(taskKey(task.ID), task, taskTTL)
	s.invalidateUser(task.UserID)
	return task, nil
}

func (s *CachedTaskService) GetTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	var cached models.Task
	if err := s.cache.Get(taskKey(id), &cached); err == nil {
		return cached, nil
	}

	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return task, err
	}
	s.cache.Set(taskKey(id), task, taskTTL)
	return task, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id uuid.UUID, patch store.TaskPatch) (models.Task, error) {
	task, err := s.tasks.UpdateTask(ctx, id, patch)
	if err != nil {
		return models.Task{}, err
	}
	s.cache.Set(taskKey(id), task, taskTTL)
	s.invalidateUser(task.UserID)
	return task, nil
}

func (s *CachedTaskService) SetCompleted(ctx context.Context, id uuid.UUID, completed bool) (models.Task, error) {
	task, err := s.tasks.SetCompleted(ctx, id, completed)
	if err != nil {
		return models.Task{}, err
	}
	s.cache.Set(taskKey(id), task, taskTTL)
	s.invalidateUser(task.UserID)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id uuid.UUID, cascade bool) (int64, error) {
	// Resolve the owner first; after the delete the row is gone.
	task, getErr := s.tasks.GetTask(ctx, id)

	deleted, err := s.tasks.DeleteTask(ctx, id, cascade)
	if err != nil {
		return 0, err
	}

	s.cache.Delete(taskKey(id))
	if getErr == nil {
		s.invalidateUser(task.UserID)
	}
	return deleted, nil
}

func (s *CachedTaskService) ListTasks(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Task, error) {
	key := listKey(userID, opts)

	var cached []models.Task
	if err := s.cache.Get(key, &cached); err == nil {
		return cached, nil
	}

	tasks, err := s.tasks.ListTasks(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, tasks, listTTL)
	return tasks, nil
}

func (s *CachedTaskService) ListSubtasks(ctx context.Context, parentID uuid.UUID) ([]models.Task, error) {
	key := subtasksKey(parentID)

	var cached []models.Task
	if err := s.cache.Get(key, &cached); err == nil {
		return cached, nil
	}

	tasks, err := s.tasks.ListSubtasks(ctx, parentID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, tasks, subtasksTTL)
	return tasks, nil
}

func (s *CachedTaskService) SearchTasks(ctx context.Context, userID uuid.UUID, query string) ([]models.Task, error) {
	key := searchKey(userID, query)

	var cached []models.Task
	if err := s.cache.Get(key, &cached); err == nil {
		return cached, nil
	}

	tasks, err := s.tasks.SearchTasks(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, tasks, searchTTL)
	return tasks, nil
}

// WarmUserTasks registers the user's open root listing with the warmer, the
// listing a client renders first.
func (s *CachedTaskService) WarmUserTasks(userID uuid.UUID) {
	completed := false
	opts := ListOptions{RootOnly: true, Completed: &completed, Sort: SortCreatedDesc}

	s.warmer.AddJob(cache.WarmupJob{
		Key:      listKey(userID, opts),
		TTL:      listTTL,
		Priority: 100,
		Load: func(ctx context.Context) (interface{}, error) {
			return s.tasks.ListTasks(ctx, userID, opts)
		},
	})
}

func (s *CachedTaskService) StartWarming(ctx context.Context) {
	s.warmer.Start(ctx)
}

func (s *CachedTaskService) StopWarming() {
	s.warmer.Stop()
}

func (s *CachedTaskService) CacheStats() map[string]interface{} {
	stats := s.cache.Stats()
	stats["warmer"] = s.warmer.Stats()
	return stats
}
