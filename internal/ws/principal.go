package ws

// Roles known to the office backend. Role values are carried verbatim from
// the access token, these are the ones the service reasons about.
const (
	RoleAdmin     = "ADMIN"
	RoleGeometra  = "GEOMETRA"
	RoleSecretary = "SECRETARY"
)

// Principal is the identity attached to an admitted connection. It never
// changes for the lifetime of the connection.
type Principal struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Role         string `json:"role"`
}
