package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleStore struct {
	keys map[string]bool
}

func (s *exampleStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *exampleStore) IdempotencyKey(scope, id string) string {
	return "sr:idempotency:" + scope + ":" + id
}

func (s *exampleStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func ExampleManager_CheckAndMarkProcessed() {
	ctx := context.Background()
	manager, _ := NewManager(&exampleStore{keys: map[string]bool{}}, 30*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for i := 0; i < 2; i++ {
		seen, _ := manager.CheckAndMarkProcessed(ctx, "report-completion", eventID)
		if seen {
			fmt.Println("already processed")
			continue
		}
		fmt.Println("processing event")
	}
	// Output:
	// processing event
	// already processed
}
