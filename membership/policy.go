//go:generate go run go.uber.org/mock/mockgen -source=policy.go -destination=../mocks/mock_policy.go -package=mocks
// Package membership decides who may take part in a project's chat.
// The rule is a policy value, not a hard-coded assumption: deployments
// can swap in a different participation rule without touching the
// connection manager.
package membership

import (
	"fmt"

	"atelier-chat/domain/chat"
	"atelier-chat/errors"
	"atelier-chat/repositories"
)

type IPolicy interface {
	// Allowed returns nil when the user may join and send in the
	// project's room, ErrNotAProjectMember otherwise.
	Allowed(userID string, roomID chat.RoomID) error
}

// PolicyFunc adapts a plain function to IPolicy.
type PolicyFunc func(userID string, roomID chat.RoomID) error

func (f PolicyFunc) Allowed(userID string, roomID chat.RoomID) error {
	return f(userID, roomID)
}

// ProjectPolicy is the default rule: the project's client and its hired
// designer are the room's only legitimate participants.
type ProjectPolicy struct {
	projects repositories.IProjectRepository
}

func NewProjectPolicy(projects repositories.IProjectRepository) *ProjectPolicy {
	return &ProjectPolicy{projects: projects}
}

func (p *ProjectPolicy) Allowed(userID string, roomID chat.RoomID) error {
	record, err := p.projects.GetProject(string(roomID))
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrNotAProjectMember, err)
	}
	if record.ClientID == userID {
		return nil
	}
	if record.DesignerID != "" && record.DesignerID == userID {
		return nil
	}
	return fmt.Errorf("%w: user %s, project %s", errors.ErrNotAProjectMember, userID, roomID)
}
