package probe

import "pkt.systems/shopprobe/internal/api"

// Session is the state successful probes leave behind for later ones. It
// lives for one process and is never persisted.
type Session struct {
	Token  string
	User   *api.User
	ListID string
}

// Authenticated reports whether a bearer token is held.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// HasList reports whether a list was created in this session.
func (s *Session) HasList() bool {
	return s != nil && s.ListID != ""
}

func (s *Session) signIn(auth api.AuthPayload) {
	s.Token = auth.Token
	s.User = auth.User
}
