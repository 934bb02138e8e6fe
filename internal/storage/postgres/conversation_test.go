package postgres

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/types"
)

var _ conversation.Store = (*ConversationRepository)(nil)

// openTestRepository connects to TEST_DATABASE_DSN and starts from empty
// tables. Tests are skipped when it is not set.
func openTestRepository(t *testing.T, opts ...RepositoryOption) *ConversationRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	db, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Pool().Exec(ctx, `TRUNCATE messages, conversations`)
	require.NoError(t, err)

	return NewConversationRepository(db.Pool(), opts...)
}

func hello() []types.Message {
	return []types.Message{
		{Role: types.RoleUser, Content: "Hello"},
		{Role: types.RoleAssistant, Content: "Hi there"},
	}
}

func contents(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t, WithModel("test-model"))

	id, err := repo.Save(ctx, "", hello(), "")
	require.NoError(t, err)

	msgs, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, contents(hello()), contents(msgs))

	conv, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "Hello", conv.Title)
	assert.Equal(t, "Hello... → Hi there...", conv.Summary)
	assert.Equal(t, "test-model", conv.Model)

	_, err = repo.Save(ctx, id, []types.Message{{Role: types.RoleUser, Content: "replaced"}}, "")
	require.NoError(t, err)
	msgs, err = repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:replaced"}, contents(msgs))
}

func TestRepositorySearchAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)

	id, err := repo.Save(ctx, "", []types.Message{
		{Role: types.RoleUser, Content: "channels"},
		{Role: types.RoleAssistant, Content: "channels again"},
	}, "")
	require.NoError(t, err)

	hits, err := repo.Search(ctx, "channels")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "channels", hits[0].MatchingContent)

	require.NoError(t, repo.Delete(ctx, id))
	require.NoError(t, repo.Delete(ctx, id))

	msgs, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRepositoryDedupe(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t, WithDedupeByContent(true))

	a, err := repo.Save(ctx, "", hello(), "")
	require.NoError(t, err)
	b, err := repo.Save(ctx, "", hello(), "")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepositoryConcurrentDedupe(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t, WithDedupeByContent(true))

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids[w], errs[w] = repo.Save(ctx, "", hello(), "")
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.NoError(t, errs[w])
		assert.Equal(t, ids[0], ids[w])
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
