package domain

// Identity authenticated user, 每條連線載入一次後不變
type Identity struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	IsProvider bool   `json:"is_provider"`
}

// Principal Authenticated 或 Anonymous
type Principal struct {
	identity      Identity
	authenticated bool
}

// Anonymous unauthenticated principal
func Anonymous() Principal {
	return Principal{}
}

// Authenticated wrap identity
func Authenticated(id Identity) Principal {
	return Principal{identity: id, authenticated: true}
}

// Identity 只有 authenticated 時 ok 為 true
func (p Principal) Identity() (Identity, bool) {
	if !p.authenticated {
		return Identity{}, false
	}
	return p.identity, true
}

// IsAnonymous -
func (p Principal) IsAnonymous() bool {
	return !p.authenticated
}

func (p Principal) String() string {
	if !p.authenticated {
		return "anonymous"
	}
	return p.identity.Username
}
