package manager

import (
	"context"

	"github.com/google/uuid"
)

// LoadAsync validates the key and starts the load in the background,
// returning an operation ID. Progress is observable through Status,
// Progress and the event publisher.
func (m *Manager) LoadAsync(key string) (string, error) {
	if _, ok := m.catalog.Lookup(key); !ok {
		return "", ErrUnknownModel(key)
	}
	opID := uuid.NewString()
	m.publisher.Publish(Event{Name: "load_async", Model: key, Fields: map[string]any{"op": opID}})
	// Detached context: the load outlives the request that kicked it off
	// and is bounded by the manager's own stage budgets.
	go func() {
		if err := m.Load(context.Background(), key, nil); err != nil {
			m.log.Error().Err(err).Str("model", key).Str("op", opID).Msg("async load failed")
		}
	}()
	return opID, nil
}
