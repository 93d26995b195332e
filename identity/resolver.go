//go:generate go run go.uber.org/mock/mockgen -source=resolver.go -destination=../mocks/mock_resolver.go -package=mocks
// Package identity maps auth-provider tokens to durable user identities.
// Room joins are only honored for resolved identities; the raw provider
// subject never leaves this package.
package identity

import (
	"fmt"
	"log/slog"

	"atelier-chat/auth"
	"atelier-chat/domain/chat"
	"atelier-chat/errors"
	"atelier-chat/repositories"
)

type IResolver interface {
	Resolve(token string) (chat.Sender, error)
}

// DirectoryResolver validates the provider token, then looks the
// subject up in the user directory to obtain the durable identity.
type DirectoryResolver struct {
	codec *auth.TokenCodec
	users repositories.IUserRepository
	log   *slog.Logger
}

func NewDirectoryResolver(codec *auth.TokenCodec, users repositories.IUserRepository, log *slog.Logger) *DirectoryResolver {
	return &DirectoryResolver{codec: codec, users: users, log: log}
}

func (r *DirectoryResolver) Resolve(token string) (chat.Sender, error) {
	claims, err := r.codec.Validate(token)
	if err != nil {
		return chat.Sender{}, fmt.Errorf("%w: %v", errors.ErrIdentityUnresolved, err)
	}

	record, err := r.users.GetBySubject(claims.Subject)
	if err != nil {
		// A valid token for a subject without a marketplace account is
		// still an unresolved identity from the chat core's perspective.
		r.log.Warn("token subject has no user record", "subject", claims.Subject)
		return chat.Sender{}, fmt.Errorf("%w: %v", errors.ErrIdentityUnresolved, err)
	}

	return chat.Sender{ID: record.ID, Name: record.Name, Avatar: record.Avatar}, nil
}
