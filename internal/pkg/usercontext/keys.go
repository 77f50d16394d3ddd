package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyUserID        = "user_id"
	KeyUsername      = "username"
	KeyEmail         = "user_email"
	KeyFromProtected = "from_protected"
)

// Identity sources.
const (
	SourceSession = "session"
	SourceAPIKey  = "api_key"
)
