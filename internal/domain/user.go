package domain

import "time"

// User represents a service account. Only its existence matters to the todo
// lifecycle; there is no credential material here.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
