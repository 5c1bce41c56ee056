package globals

// Context keys
type ContextKey string

const RoleKey ContextKey = "role"
const UserIDKey ContextKey = "userId"

// JwtSecret verifies bearer tokens. Set once at startup.
var JwtSecret []byte

// Cache key namespaces. The verification and forgery pipelines for the same
// upload never share a key.
const (
	VerificationPrefix = "verification:"
	ForgeryPrefix      = "forgery_detection:"
)

// Redis channel carrying job lifecycle events.
const VerificationEventsChannel = "verification-events"
