package model

// Actor is the authenticated caller of a core operation, built from a
// verified bearer token.  Operations receive it explicitly.
type Actor struct {
	UserID string
	Email  string
	Name   string
	Staff  bool
}

// Authenticated reports whether the actor carries a user identity.
func (a Actor) Authenticated() bool { return a.UserID != "" }

// DisplayName falls back to the email when the identity has no name.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}
