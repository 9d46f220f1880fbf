package access

import "time"

// Surface is a student-facing area of a batch.
type Surface string

const (
	SurfacePayments    Surface = "payments"
	SurfaceNotes       Surface = "notes"
	SurfaceQuizzes     Surface = "quizzes"
	SurfaceAssignments Surface = "assignments"
	SurfaceMessaging   Surface = "messaging"
)

var Surfaces = []Surface{SurfacePayments, SurfaceNotes, SurfaceQuizzes, SurfaceAssignments, SurfaceMessaging}

func (s Surface) Valid() bool {
	for _, surface := range Surfaces {
		if s == surface {
			return true
		}
	}
	return false
}

// OpenToLocked reports whether locked students may still use the surface.
func (s Surface) OpenToLocked() bool { return s == SurfacePayments }

// LockEntry marks a student as locked in a batch. Absence means active.
type LockEntry struct {
	BatchID   string    `json:"batch_id"`
	StudentID string    `json:"student_id"`
	LockedAt  time.Time `json:"locked_at"`
	LockedBy  string    `json:"locked_by"`
	Reason    string    `json:"reason,omitempty"`
}

type ToggleRequest struct {
	Reason string `json:"reason"`
}

// Decision is the outcome of a surface access check.
type Decision struct {
	Surface Surface `json:"surface"`
	Allowed bool    `json:"allowed"`
	Locked  bool    `json:"locked"`
}
