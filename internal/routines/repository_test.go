package routines

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/db"
)

// ==========================================================================
// Test Setup Helpers
// ==========================================================================

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	return dbPair
}

func newTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func presetAction(preset int) Action {
	return Action{Type: ActionPlayPreset, Preset: &preset}
}

func createTestRoutine(t *testing.T, repo *Repository, name string) *Routine {
	t.Helper()
	routine, err := repo.Create(CreateRoutineInput{
		Name:      name,
		Schedule:  "30 6 * * 1-5",
		Action:    presetAction(1),
		PlayerIDs: []int{1, 2},
	})
	require.NoError(t, err)
	require.NotNil(t, routine)
	return routine
}

func ptrBool(v bool) *bool { return &v }

func ptrInt(v int) *int { return &v }

func ptrString(v string) *string { return &v }

// ==========================================================================
// Tests
// ==========================================================================

func TestRepository_Create(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	routine, err := repo.Create(CreateRoutineInput{
		Name:      "Weekday Wake Up",
		Schedule:  "30 6 * * 1-5",
		Action:    presetAction(3),
		PlayerIDs: []int{1, 2, 3},
	})
	require.NoError(t, err)
	require.NotNil(t, routine)
	require.NotEmpty(t, routine.RoutineID)
	require.Equal(t, "Weekday Wake Up", routine.Name)
	require.True(t, routine.Enabled) // enabled by default
	require.Equal(t, "30 6 * * 1-5", routine.Schedule)
	require.Equal(t, ActionPlayPreset, routine.Action.Type)
	require.NotNil(t, routine.Action.Preset)
	require.Equal(t, 3, *routine.Action.Preset)
	require.Equal(t, []int{1, 2, 3}, routine.PlayerIDs)
	require.Nil(t, routine.LastRunAt)
	require.Nil(t, routine.LastRunError)
	require.WithinDuration(t, time.Now().UTC(), routine.CreatedAt, 5*time.Second)
	require.WithinDuration(t, time.Now().UTC(), routine.UpdatedAt, 5*time.Second)
}

func TestRepository_Create_Disabled(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	routine, err := repo.Create(CreateRoutineInput{
		Name:      "Disabled Routine",
		Enabled:   ptrBool(false),
		Schedule:  "0 9 * * *",
		Action:    presetAction(1),
		PlayerIDs: []int{1},
	})
	require.NoError(t, err)
	require.False(t, routine.Enabled)
}

func TestRepository_Create_NilPlayerIDs(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	routine, err := repo.Create(CreateRoutineInput{
		Name:     "No Players",
		Schedule: "0 9 * * *",
		Action:   presetAction(1),
	})
	require.NoError(t, err)
	require.NotNil(t, routine.PlayerIDs)
	require.Empty(t, routine.PlayerIDs)
}

func TestRepository_GetByID(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	created := createTestRoutine(t, repo, "Morning Jazz")

	fetched, err := repo.GetByID(created.RoutineID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, created.RoutineID, fetched.RoutineID)
	require.Equal(t, "Morning Jazz", fetched.Name)
	require.Equal(t, []int{1, 2}, fetched.PlayerIDs)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	routine, err := repo.GetByID("nonexistent-id")
	require.NoError(t, err)
	require.Nil(t, routine)
}

func TestRepository_List_NewestFirst(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	// Timestamps have second precision, so space the inserts out
	createTestRoutine(t, repo, "First")
	time.Sleep(1100 * time.Millisecond)
	createTestRoutine(t, repo, "Second")

	routines, err := repo.List()
	require.NoError(t, err)
	require.Len(t, routines, 2)
	require.Equal(t, "Second", routines[0].Name)
	require.Equal(t, "First", routines[1].Name)
}

func TestRepository_List_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	routines, err := repo.List()
	require.NoError(t, err)
	require.NotNil(t, routines)
	require.Empty(t, routines)
}

func TestRepository_ListEnabled(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	createTestRoutine(t, repo, "Enabled Routine")

	_, err := repo.Create(CreateRoutineInput{
		Name:      "Disabled Routine",
		Enabled:   ptrBool(false),
		Schedule:  "0 9 * * *",
		Action:    presetAction(1),
		PlayerIDs: []int{1},
	})
	require.NoError(t, err)

	enabled, err := repo.ListEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "Enabled Routine", enabled[0].Name)
}

func TestRepository_Update(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	created := createTestRoutine(t, repo, "Old Name")

	level := 25
	updated, err := repo.Update(created.RoutineID, UpdateRoutineInput{
		Name:   ptrString("New Name"),
		Action: &Action{Type: ActionSetVolume, Level: &level},
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, "New Name", updated.Name)
	require.Equal(t, ActionSetVolume, updated.Action.Type)
	require.NotNil(t, updated.Action.Level)
	require.Equal(t, 25, *updated.Action.Level)
	require.Nil(t, updated.Action.Preset)

	// Untouched fields survive
	require.Equal(t, created.Schedule, updated.Schedule)
	require.Equal(t, created.PlayerIDs, updated.PlayerIDs)
	require.True(t, updated.Enabled)
}

func TestRepository_Update_PlayerIDs(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	created := createTestRoutine(t, repo, "Routine")

	updated, err := repo.Update(created.RoutineID, UpdateRoutineInput{
		PlayerIDs: []int{7, 8, 9},
	})
	require.NoError(t, err)
	require.Equal(t, []int{7, 8, 9}, updated.PlayerIDs)
	require.Equal(t, created.Name, updated.Name)
}

func TestRepository_Update_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	updated, err := repo.Update("nonexistent-id", UpdateRoutineInput{
		Name: ptrString("New Name"),
	})
	require.NoError(t, err)
	require.Nil(t, updated)
}

func TestRepository_Delete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	created := createTestRoutine(t, repo, "To Delete")

	deleted, err := repo.Delete(created.RoutineID)
	require.NoError(t, err)
	require.True(t, deleted)

	fetched, err := repo.GetByID(created.RoutineID)
	require.NoError(t, err)
	require.Nil(t, fetched)

	// Second delete reports false
	deleted, err = repo.Delete(created.RoutineID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestRepository_RecordRun(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	created := createTestRoutine(t, repo, "Routine")

	ranAt := time.Now().UTC()
	err := repo.RecordRun(created.RoutineID, ranAt, nil)
	require.NoError(t, err)

	fetched, err := repo.GetByID(created.RoutineID)
	require.NoError(t, err)
	require.NotNil(t, fetched.LastRunAt)
	require.WithinDuration(t, ranAt, *fetched.LastRunAt, 2*time.Second)
	require.Nil(t, fetched.LastRunError)
}

func TestRepository_RecordRun_Error(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	created := createTestRoutine(t, repo, "Routine")

	err := repo.RecordRun(created.RoutineID, time.Now().UTC(), errors.New("player 1: command timed out"))
	require.NoError(t, err)

	fetched, err := repo.GetByID(created.RoutineID)
	require.NoError(t, err)
	require.NotNil(t, fetched.LastRunError)
	require.Contains(t, *fetched.LastRunError, "command timed out")

	// A later clean run clears the error
	err = repo.RecordRun(created.RoutineID, time.Now().UTC(), nil)
	require.NoError(t, err)

	fetched, err = repo.GetByID(created.RoutineID)
	require.NoError(t, err)
	require.Nil(t, fetched.LastRunError)
}
