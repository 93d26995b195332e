package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrIdentityUnresolved = fmt.Errorf("identity could not be resolved")
	ErrNotAProjectMember  = fmt.Errorf("not a member of this project")
	ErrEmptyMessage       = fmt.Errorf("message body is empty")
	ErrProjectNotFound    = fmt.Errorf("project not found")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrRoomBusy           = fmt.Errorf("room command queue is full")
	ErrAlreadyIdentified  = fmt.Errorf("connection already carries an identity")
	ErrInvalidRoom        = fmt.Errorf("room id contains a reserved character")
	ErrSessionClosed      = fmt.Errorf("session is closed")
	ErrUnknownEvent       = fmt.Errorf("unknown event type")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
)
