package chat

// Identity is the signed-in user as reported by the identity provider.
type Identity struct {
	UserID        string `json:"uid"`
	Authenticated bool   `json:"authenticated"`
}

// Valid reports whether the identity can own a session.
func (i Identity) Valid() bool {
	return i.Authenticated && i.UserID != ""
}
