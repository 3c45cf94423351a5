package types

// Role is the privilege class of a participant.
type Role string

const (
	RoleMember     Role = "member"
	RoleSuperAdmin Role = "superadmin"
)

// Participant is the identity the core consumes from the identity provider. Id is opaque (usually the
// e-mail claim of the id token) and unique.
type Participant struct {
	Id   string `json:"id"`
	Nick string `json:"nick"`
	Role Role   `json:"role"`
}

func (p Participant) IsSuper() bool {
	return p.Role == RoleSuperAdmin
}
