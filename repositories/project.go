//go:generate go run go.uber.org/mock/mockgen -source=project.go -destination=../mocks/mock_project_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"atelier-chat/errors"
)

type IProjectRepository interface {
	UpsertProject(project ProjectRecord) error
	GetProject(id string) (ProjectRecord, error)
}

// ProjectRecord is the slice of the marketplace's project document the
// chat core needs: who posted the project and which designer was hired.
// DesignerID is empty while the project has no hired designer.
type ProjectRecord struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	DesignerID string    `json:"designer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProjectRepository struct {
	db *badger.DB
}

func NewProjectRepository(db *badger.DB) IProjectRepository {
	return &ProjectRepository{db: db}
}

func (p ProjectRepository) UpsertProject(project ProjectRecord) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("project:"+project.ID), data)
	})
}

func (p ProjectRepository) GetProject(id string) (ProjectRecord, error) {
	var record ProjectRecord
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("project:" + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return ProjectRecord{}, fmt.Errorf("%w: %q", errors.ErrProjectNotFound, id)
	}
	if err != nil {
		return ProjectRecord{}, err
	}
	return record, nil
}
