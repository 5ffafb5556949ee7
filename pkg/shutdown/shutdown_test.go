package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_RunsInReverseOrderOnce(t *testing.T) {
	m := NewManager()
	var order []string
	m.OnShutdown("ledger", func(ctx context.Context) error {
		order = append(order, "ledger")
		return nil
	})
	m.OnShutdown("journal", func(ctx context.Context) error {
		order = append(order, "journal")
		return errors.New("disk full")
	})
	m.OnShutdown("workers", func(ctx context.Context) error {
		order = append(order, "workers")
		return nil
	})

	failed := m.Shutdown(context.Background())
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"workers", "journal", "ledger"}, order)

	assert.Equal(t, 0, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}
