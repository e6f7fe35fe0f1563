package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tasktracker/internal/models"
	"tasktracker/internal/services"
	"tasktracker/internal/store"
)

// Marker tags every seeded task. A re-run deletes all previously marked
// tasks for the demo user before inserting, so repeated runs converge.
const Marker = "sample-data"

type Result struct {
	UserCreated  bool
	TasksDeleted int64
	TasksCreated int
}

type Seeder struct {
	store *store.Store
	tasks services.TaskService
	email string
}

func NewSeeder(st *store.Store, tasks services.TaskService, demoEmail string) *Seeder {
	return &Seeder{store: st, tasks: tasks, email: demoEmail}
}

func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var result Result

	user, err := s.store.FindUserByEmail(ctx, s.email)
	if errors.Is(err, store.ErrNotFound) {
		user = models.User{
			Email:          s.email,
			CredentialHash: "$demo$not-a-real-credential",
			DisplayName:    "Demo User",
			Settings:       &models.UserSettings{Timezone: "UTC", Theme: "dark"},
		}
		if _, err := s.store.InsertUser(ctx, &user); err != nil {
			return result, fmt.Errorf("create demo user: %w", err)
		}
		result.UserCreated = true
	} else if err != nil {
		return result, fmt.Errorf("look up demo user: %w", err)
	}

	deleted, err := s.store.DeleteTasksByTag(ctx, user.ID, Marker)
	if err != nil {
		return result, fmt.Errorf("clear previous sample tasks: %w", err)
	}
	result.TasksDeleted = deleted

	created, err := s.insertDemoTasks(ctx, user)
	if err != nil {
		return result, err
	}
	result.TasksCreated = created

	log.Printf("seed: user=%s created=%t deleted=%d inserted=%d",
		user.Email, result.UserCreated, result.TasksDeleted, result.TasksCreated)
	return result, nil
}

func (s *Seeder) insertDemoTasks(ctx context.Context, user models.User) (int, error) {
	created := 0

	roadmapDue := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	roadmapPriority := 4
	roadmap, err := s.tasks.CreateTask(ctx, services.CreateTaskInput{
		UserID:      user.ID,
		Title:       "Plan roadmap",
		Description: "Quarterly planning for the product roadmap",
		Priority:    &roadmapPriority,
		DueAt:       &roadmapDue,
		Tags:        []string{Marker, "planning"},
	})
	if err != nil {
		return created, fmt.Errorf("seed roadmap task: %w", err)
	}
	created++

	// Subtasks with no priority or due date inherit the parent's values.
	for _, title := range []string{"Draft OKRs", "Review with team"} {
		if _, err := s.tasks.CreateTask(ctx, services.CreateTaskInput{
			Title:    title,
			ParentID: &roadmap.ID,
		}); err != nil {
			return created, fmt.Errorf("seed subtask %q: %w", title, err)
		}
		created++
	}

	groceriesEstimate := 45
	groceries, err := s.tasks.CreateTask(ctx, services.CreateTaskInput{
		UserID:           user.ID,
		Title:            "Buy groceries",
		Description:      "Weekly shopping run",
		EstimatedMinutes: &groceriesEstimate,
		Tags:             []string{Marker, "errands"},
	})
	if err != nil {
		return created, fmt.Errorf("seed groceries task: %w", err)
	}
	created++
	if _, err := s.tasks.SetCompleted(ctx, groceries.ID, true); err != nil {
		return created, fmt.Errorf("complete groceries task: %w", err)
	}

	taxesDue := time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC)
	taxesPriority := 5
	if _, err := s.tasks.CreateTask(ctx, services.CreateTaskInput{
		UserID:      user.ID,
		Title:       "File taxes",
		Description: "Gather receipts and file the annual return",
		Priority:    &taxesPriority,
		DueAt:       &taxesDue,
		Tags:        []string{Marker, "finance"},
	}); err != nil {
		return created, fmt.Errorf("seed taxes task: %w", err)
	}
	created++

	return created, nil
}
