package models

import "time"

// Project is the root container (§3). Child entities are owned by
// containment; deletions cascade from the Project.
type Project struct {
	ID          string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
