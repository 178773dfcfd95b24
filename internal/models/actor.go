package models

// Actor identifies who performed a mutation. Every price change and catalog
// write carries one; history rows store the user id when present and NULL
// for system-initiated changes.
type Actor struct {
	userID int64
	isUser bool
}

// ActorUser returns an actor for an authenticated user.
func ActorUser(id int64) Actor {
	return Actor{userID: id, isUser: true}
}

// ActorSystem returns the well-known system actor used for unauthenticated
// or scheduled mutations.
func ActorSystem() Actor {
	return Actor{}
}

// UserID returns the acting user's id, or false for the system actor.
func (a Actor) UserID() (int64, bool) {
	return a.userID, a.isUser
}

// UserIDPtr returns a nullable id suitable for history rows.
func (a Actor) UserIDPtr() *int64 {
	if !a.isUser {
		return nil
	}
	id := a.userID
	return &id
}

func (a Actor) String() string {
	if !a.isUser {
		return "system"
	}
	return "user"
}
