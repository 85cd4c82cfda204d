package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openroger/openroger/internal/phase"
)

func newTestStore(t *testing.T) *Store {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew_CreatesSchema(t *testing.T) {
	store := newTestStore(t)

	tables := []string{"projects", "agents", "tasks", "approvals", "meta"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	var idxCount int
	err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_%'").Scan(&idxCount)
	require.NoError(t, err)
	assert.Greater(t, idxCount, 0, "indices should be created")
}

func TestCreateProject_Defaults(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Prompt: "a todo app with auth", UserID: "user-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "a todo app with auth", p.Name)
	assert.Equal(t, phase.Architecture, p.CurrentPhase)
	assert.Equal(t, phase.StatusActive, p.Status)

	got, err := store.GetProject(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
}

func TestCreateProject_NameTruncatedFromPrompt(t *testing.T) {
	store := newTestStore(t)

	prompt := strings.Repeat("x", 120)
	p, err := store.CreateProject(CreateProjectInput{Prompt: prompt, UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, p.Name, 50)
}

func TestCreateProject_RequiresPrompt(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateProject(CreateProjectInput{Name: "name", UserID: "user-1"})
	assert.Error(t, err)
}

func TestGetProjectForUser_ScopesByOwner(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Name: "mine", Prompt: "build it", UserID: "user-1"})
	require.NoError(t, err)

	got, err := store.GetProjectForUser(p.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)

	other, err := store.GetProjectForUser(p.ID, "user-2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestListProjects_NewestFirst(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateProject(CreateProjectInput{Prompt: "first", UserID: "user-1"})
	require.NoError(t, err)
	second, err := store.CreateProject(CreateProjectInput{Prompt: "second", UserID: "user-1"})
	require.NoError(t, err)
	// Force a stable order regardless of clock resolution.
	_, err = store.db.Exec(`UPDATE projects SET created_at = 100 WHERE id = ?`, first.ID)
	require.NoError(t, err)
	_, err = store.db.Exec(`UPDATE projects SET created_at = 200 WHERE id = ?`, second.ID)
	require.NoError(t, err)
	_, err = store.CreateProject(CreateProjectInput{Prompt: "other user", UserID: "user-2"})
	require.NoError(t, err)

	projects, err := store.ListProjects("user-1")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, second.ID, projects[0].ID)
	assert.Equal(t, first.ID, projects[1].ID)
}

func TestAdvancePhase(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Prompt: "build it", UserID: "user-1"})
	require.NoError(t, err)

	err = store.AdvancePhase(p.ID, phase.Architecture, phase.DatabaseDesign)
	require.NoError(t, err)

	got, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, phase.DatabaseDesign, got.CurrentPhase)

	// Stale pointer: the project already moved on.
	err = store.AdvancePhase(p.ID, phase.Architecture, phase.DatabaseDesign)
	assert.Error(t, err)

	// Skipping a phase is rejected.
	err = store.AdvancePhase(p.ID, phase.DatabaseDesign, phase.ReviewRefinement)
	assert.Error(t, err)
}

func TestSeedDefaultAgents(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Prompt: "build it", UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, store.SeedDefaultAgents(p.ID))

	agents, err := store.ListAgents(p.ID)
	require.NoError(t, err)
	require.Len(t, agents, 5)
	assert.Equal(t, "Master", agents[0].Name)
	assert.Equal(t, "orchestrator", agents[0].Role)
	for _, a := range agents {
		assert.True(t, a.IsDefault)
		assert.True(t, a.Approved)
	}

	backend, err := store.GetAgentByRole(p.ID, "backend")
	require.NoError(t, err)
	require.NotNil(t, backend)
	assert.Equal(t, []string{"backend"}, backend.AllowedFolders)
}

func TestAddAgent_AppendsUnapproved(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Prompt: "build it", UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, store.SeedDefaultAgents(p.ID))

	a, err := store.AddAgent(p.ID, "QA", "qa", []string{"backend", "frontend"})
	require.NoError(t, err)
	assert.False(t, a.IsDefault)
	assert.False(t, a.Approved)
	assert.Equal(t, 5, a.Position)

	agents, err := store.ListAgents(p.ID)
	require.NoError(t, err)
	require.Len(t, agents, 6)
	assert.Equal(t, "QA", agents[5].Name)
}

func TestTasks_AppendAndList(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Prompt: "build it", UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, store.SeedDefaultAgents(p.ID))

	agent, err := store.GetAgentByRole(p.ID, "architecture")
	require.NoError(t, err)
	require.NotNil(t, agent)

	err = store.AppendTask(&Task{
		ProjectID:    p.ID,
		AgentID:      agent.ID,
		Phase:        string(phase.Architecture),
		Title:        "Architecture phase",
		Output:       "plan text",
		FilesCreated: []string{"backend/architecture.md"},
		Status:       "completed",
		CreatedAt:    100,
	})
	require.NoError(t, err)
	err = store.AppendTask(&Task{
		ProjectID: p.ID,
		AgentID:   agent.ID,
		Phase:     string(phase.DatabaseDesign),
		Title:     "Database design phase",
		Status:    "failed",
		CreatedAt: 200,
	})
	require.NoError(t, err)

	tasks, err := store.ListTasks(p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	// Newest first, agent identity joined in.
	assert.Equal(t, "Database design phase", tasks[0].Title)
	assert.Equal(t, "Architecture", tasks[0].AgentName)
	assert.Equal(t, "architecture", tasks[0].AgentRole)
	assert.Equal(t, []string{"backend/architecture.md"}, tasks[1].FilesCreated)
	assert.Equal(t, "plan text", tasks[1].Output)
}

func TestApprovals_AddAndList(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Prompt: "build it", UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, store.AddApproval(&Approval{
		ProjectID: p.ID,
		Phase:     phase.Architecture,
		UserID:    "user-1",
		Action:    phase.ActionApproved,
		CreatedAt: 100,
	}))
	require.NoError(t, store.AddApproval(&Approval{
		ProjectID: p.ID,
		Phase:     phase.DatabaseDesign,
		UserID:    "user-1",
		Action:    phase.ActionChangesRequested,
		Comment:   "add indexes",
		CreatedAt: 200,
	}))

	approvals, err := store.ListApprovals(p.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	assert.Equal(t, phase.ActionChangesRequested, approvals[0].Action)
	assert.Equal(t, "add indexes", approvals[0].Comment)
	assert.Equal(t, phase.ActionApproved, approvals[1].Action)
	assert.Empty(t, approvals[1].Comment)
}

func TestUpdateStatusAndWorkspace(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreateProject(CreateProjectInput{Prompt: "build it", UserID: "user-1"})
	require.NoError(t, err)

	structure := map[string]any{"backend": map[string]any{}}
	require.NoError(t, store.UpdateWorkspace(p.ID, "/tmp/projects/"+p.ID, structure))
	require.NoError(t, store.UpdateStatus(p.ID, phase.StatusCompleted))

	got, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/projects/"+p.ID, got.WorkspacePath)
	assert.Equal(t, phase.StatusCompleted, got.Status)
	assert.Contains(t, got.FolderStructure, "backend")
}
