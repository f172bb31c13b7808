package auth

// Known OAuth scopes used by the session service.
const (
	ScopeSessionsWrite = "sessions:write"
	ScopeSessionsRead  = "sessions:read"
)
