// Seeds a demo session with a short generation history, for local UI work
// against a fresh database.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"ai-appgen-be/internal/constant"
	"ai-appgen-be/internal/entity"
	"ai-appgen-be/internal/repository/unitofwork"
	"ai-appgen-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	userIdStr := os.Getenv("SEED_USER_ID")
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		log.Fatal("Error: SEED_USER_ID must be a valid UUID")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(db).NewUnitOfWork(ctx)

	session := entity.AppSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     "Demo: todo app",
		CreatedAt: time.Now(),
	}

	if err := uow.Begin(ctx); err != nil {
		log.Fatal("Error: Failed to begin transaction:", err)
	}
	defer uow.Rollback()

	if err := uow.AppSessionRepository().Create(ctx, &session); err != nil {
		log.Fatal("Error: Failed to create demo session:", err)
	}

	now := time.Now()
	messages := []*entity.GenerationMessage{
		{
			Id:           uuid.New(),
			AppSessionId: session.Id,
			Role:         constant.MessageRoleUser,
			Kind:         constant.MessageKindText,
			Content:      "Build me a todo app with due dates",
			CreatedAt:    now,
		},
		{
			Id:           uuid.New(),
			AppSessionId: session.Id,
			Role:         constant.MessageRoleAssistant,
			Kind:         constant.MessageKindText,
			Content:      "Starting with the data model: a Task has a title, a done flag and an optional due date. Scaffolding the project next.",
			Position:     0,
			CreatedAt:    now.Add(time.Second),
		},
		{
			Id:           uuid.New(),
			AppSessionId: session.Id,
			Role:         constant.MessageRoleAssistant,
			Kind:         constant.MessageKindTool,
			ToolName:     "scaffold_project",
			ToolPayload:  map[string]interface{}{"template": "react-vite", "name": "todo-app"},
			Position:     1,
			CreatedAt:    now.Add(2 * time.Second),
		},
	}
	if err := uow.GenerationMessageRepository().AppendBatch(ctx, messages); err != nil {
		log.Fatal("Error: Failed to seed messages:", err)
	}

	if err := uow.Commit(); err != nil {
		log.Fatal("Error: Failed to commit:", err)
	}

	log.Printf("Seeded demo session %s for user %s", session.Id, userId)
}
