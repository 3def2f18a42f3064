package domain

import "time"

// Server is a tracked host. EnvironmentID references an Environment but the
// reference is never checked: removing an environment leaves its servers in place.
type Server struct {
	ID              int64     `json:"id"`
	EnvironmentID   int64     `json:"environmentId"`
	Name            string    `json:"name"`
	DomainName      string    `json:"domainName"`
	IPAddress       string    `json:"ipAddress"`
	OperatingSystem string    `json:"operatingSystem"`
	CreatedAt       time.Time `json:"createdAt"`
}
