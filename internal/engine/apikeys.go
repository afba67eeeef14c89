package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

// CreateAPIKey stores the hash of a plaintext key for an actor. The plaintext
// never touches the database; callers surface it to the user exactly once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name, plaintext string) (domain.APIKey, error) {
	if actorID == "" {
		return domain.APIKey{}, errors.New("actor id is required")
	}
	if plaintext == "" {
		return domain.APIKey{}, errors.New("key is required")
	}
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return key, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return key, err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "", "api_key", key.ID, actorID, events.EventPayload{
		"name": name,
	}); err != nil {
		return key, err
	}
	if err := tx.Commit(); err != nil {
		return key, err
	}
	return key, nil
}
