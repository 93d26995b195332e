package membership

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"atelier-chat/domain/chat"
	"atelier-chat/errors"
	"atelier-chat/repositories"
)

func seededPolicy(t *testing.T) *ProjectPolicy {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	projects := repositories.NewProjectRepository(db)
	require.NoError(t, projects.UpsertProject(repositories.ProjectRecord{
		ID: "proj-1", ClientID: "u-alice", DesignerID: "u-bob", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, projects.UpsertProject(repositories.ProjectRecord{
		ID: "proj-2", ClientID: "u-alice", CreatedAt: time.Now().UTC(),
	}))
	return NewProjectPolicy(projects)
}

func Test_Client_And_Designer_Are_Members(t *testing.T) {
	req := require.New(t)
	policy := seededPolicy(t)

	req.NoError(policy.Allowed("u-alice", chat.RoomID("proj-1")))
	req.NoError(policy.Allowed("u-bob", chat.RoomID("proj-1")))
}

func Test_Outsider_Is_Rejected(t *testing.T) {
	req := require.New(t)
	policy := seededPolicy(t)

	err := policy.Allowed("u-carol", chat.RoomID("proj-1"))
	req.ErrorIs(err, errors.ErrNotAProjectMember)
}

func Test_No_Hired_Designer_Means_Client_Only(t *testing.T) {
	req := require.New(t)
	policy := seededPolicy(t)

	req.NoError(policy.Allowed("u-alice", chat.RoomID("proj-2")))
	// An empty DesignerID must not match a user with an empty id either.
	req.ErrorIs(policy.Allowed("", chat.RoomID("proj-2")), errors.ErrNotAProjectMember)
}

func Test_Unknown_Project_Is_Rejected(t *testing.T) {
	req := require.New(t)
	policy := seededPolicy(t)

	err := policy.Allowed("u-alice", chat.RoomID("proj-missing"))
	req.ErrorIs(err, errors.ErrNotAProjectMember)
}

func Test_PolicyFunc_Adapter(t *testing.T) {
	req := require.New(t)
	allowAll := PolicyFunc(func(string, chat.RoomID) error { return nil })
	req.NoError(allowAll.Allowed("anyone", chat.RoomID("proj-1")))
}
