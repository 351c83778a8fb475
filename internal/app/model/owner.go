package model

import (
	"fmt"
	"strings"
)

type OwnerKind string

const (
	OwnerKindUser    OwnerKind = "user"
	OwnerKindSession OwnerKind = "session"
)

// Owner identifies who a cart belongs to: an authenticated user or an
// anonymous session token. The zero value is not a valid owner.
type Owner struct {
	kind      OwnerKind
	userID    uint
	sessionID string
}

func UserOwner(userID uint) Owner {
	return Owner{kind: OwnerKindUser, userID: userID}
}

func SessionOwner(sessionID string) Owner {
	return Owner{kind: OwnerKindSession, sessionID: strings.TrimSpace(sessionID)}
}

func (o Owner) Kind() OwnerKind {
	return o.kind
}

func (o Owner) UserID() (uint, bool) {
	return o.userID, o.kind == OwnerKindUser
}

func (o Owner) SessionID() (string, bool) {
	return o.sessionID, o.kind == OwnerKindSession
}

// Valid rejects the zero owner, user id 0 and empty session tokens.
func (o Owner) Valid() bool {
	switch o.kind {
	case OwnerKindUser:
		return o.userID != 0
	case OwnerKindSession:
		return o.sessionID != ""
	default:
		return false
	}
}

func (o Owner) String() string {
	switch o.kind {
	case OwnerKindUser:
		return fmt.Sprintf("user:%d", o.userID)
	case OwnerKindSession:
		return "session:" + o.sessionID
	default:
		return "unknown"
	}
}
