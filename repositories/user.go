//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"atelier-chat/errors"
)

type IUserRepository interface {
	UpsertUser(user UserRecord) error
	GetBySubject(subject string) (UserRecord, error)
}

// UserRecord maps an auth-provider subject to the durable user identity
// used everywhere in chat: the internal id plus the display profile.
// Record creation belongs to the marketplace's account flow; this
// repository only keeps the mapping the chat core consumes.
type UserRecord struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

func (u UserRepository) UpsertUser(user UserRecord) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("user:subject:"+user.Subject), data)
	})
}

func (u UserRepository) GetBySubject(subject string) (UserRecord, error) {
	var record UserRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:subject:" + subject))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return UserRecord{}, fmt.Errorf("%w: subject %q", errors.ErrUserNotFound, subject)
	}
	if err != nil {
		return UserRecord{}, err
	}
	return record, nil
}
