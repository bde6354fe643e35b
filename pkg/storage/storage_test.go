package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// newTestStore spins up a throwaway Postgres container and returns a Store
// with this package's own embedded migration applied. It intentionally does
// not share any container-lifecycle helper with another package: checkpoints
// is the only table this package needs, and the container is torn down at
// the end of the test that requested it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("agentflow"),
		tcpostgres.WithUsername("agentflow"),
		tcpostgres.WithPassword("agentflow"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))

	store, err := NewFromDB(db, "agentflow")
	require.NoError(t, err)
	return store
}

func sampleCheckpoint() model.Checkpoint {
	tokens := 512
	return model.Checkpoint{
		WorkflowID:       "wf-1",
		CompletedTaskIDs: []model.TaskID{"t1", "t2"},
		PendingTasks: []model.TaskNode{
			{
				TaskID:      "t3",
				AgentID:     "coder-1",
				Description: "implement handler",
				WriteFiles:  []string{"pkg/api/handler.go"},
				ReadFiles:   []string{"pkg/model/model.go"},
				Metadata:    map[string]string{"wave": "2"},
			},
		},
		SharedContext: map[model.TaskID]model.AgentResult{
			"t1": {
				AgentID:    "planner-1",
				Payload:    []byte(`{"plan":"ok"}`),
				Confidence: 0.9,
				TokensUsed: &tokens,
			},
		},
		Version: 1,
	}
}

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cp := sampleCheckpoint()
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, cp.WorkflowID)
	require.NoError(t, err)

	assert.Equal(t, cp.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, cp.CompletedTaskIDs, loaded.CompletedTaskIDs)
	assert.Equal(t, cp.PendingTasks, loaded.PendingTasks)
	assert.Equal(t, cp.Version, loaded.Version)
	require.Contains(t, loaded.SharedContext, model.TaskID("t1"))
	assert.Equal(t, cp.SharedContext["t1"].AgentID, loaded.SharedContext["t1"].AgentID)
	assert.Equal(t, *cp.SharedContext["t1"].TokensUsed, *loaded.SharedContext["t1"].TokensUsed)
}

func TestStore_Save_UpsertsOnConflict(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cp := sampleCheckpoint()
	require.NoError(t, store.Save(ctx, cp))

	cp.CompletedTaskIDs = append(cp.CompletedTaskIDs, "t3")
	cp.Version = 2
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, cp.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)
	assert.Equal(t, []model.TaskID{"t1", "t2", "t3"}, loaded.CompletedTaskIDs)
}

func TestStore_Load_MissingWorkflow(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := store.Load(ctx, "does-not-exist")
	assert.Error(t, err)
}
