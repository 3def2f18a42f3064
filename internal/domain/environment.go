package domain

import "time"

// Environment groups servers, e.g. Development or QA.
type Environment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
