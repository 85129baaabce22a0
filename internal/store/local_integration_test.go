//go:build integration

package store_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"archon/internal/conversation"
	"archon/internal/store"
)

// TestMain ensures no goroutines leak during integration tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLocalStore_Integration(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "store_integration_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "archon.db")

	t.Run("PersistenceAcrossReopen", func(t *testing.T) {
		s, err := store.NewLocalStore(dbPath, 10)
		require.NoError(t, err)

		sessionID := "sess-persistence"
		require.NoError(t, s.SaveHistory(sessionID, []conversation.Message{
			conversation.User("persisted question"),
			conversation.Answer("persisted answer"),
		}))
		require.NoError(t, s.SaveRevisionCount(sessionID, 3))
		require.NoError(t, s.Close())

		s2, err := store.NewLocalStore(dbPath, 10)
		require.NoError(t, err)
		defer s2.Close()

		history, err := s2.LoadHistory(sessionID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "persisted question", history[0].Text)
		assert.Equal(t, conversation.KindAnswer, history[1].Kind)

		n, err := s2.LoadRevisionCount(sessionID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		s, err := store.NewLocalStore(dbPath, 50)
		require.NoError(t, err)
		defer s.Close()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sessionID := fmt.Sprintf("sess-concurrent-%d", i)
				err := s.SaveHistory(sessionID, []conversation.Message{
					conversation.User(fmt.Sprintf("question %d", i)),
					conversation.Answer(fmt.Sprintf("answer %d", i)),
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		infos, err := s.Sessions()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(infos), 10)
	})
}
