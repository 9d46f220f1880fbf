package core

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// Caller identifies who performs an operation. It is always passed explicitly.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (c Caller) IsAdmin() bool   { return c.Role == RoleAdmin }
func (c Caller) IsTeacher() bool { return c.Role == RoleTeacher }
func (c Caller) IsStudent() bool { return c.Role == RoleStudent }

// Is reports whether the caller is the given user.
func (c Caller) Is(id string) bool { return c.ID != "" && c.ID == id }
