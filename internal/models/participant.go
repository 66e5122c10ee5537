package models

import "time"

/** --------------------ENTITIES-------------------- */
// Participant is the server's record of one connected, named chat member.
// ID is the identity of the owning connection.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

/** -------------------- DTOs -------------------- */
// HealthResponse is served by the health endpoint
type HealthResponse struct {
	Status         string        `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	ConnectedCount int           `json:"connectedCount"`
	Participants   []Participant `json:"participants"`
	// Participants recorded in Redis. Absent without Redis or when it
	// cannot be read.
	MirroredCount *int `json:"mirroredCount,omitempty"`
	// Contained errors by type since start
	Errors map[string]int `json:"errors"`
}

// InfoResponse is served by the root endpoint
type InfoResponse struct {
	Message        string            `json:"message"`
	Version        string            `json:"version"`
	Endpoints      map[string]string `json:"endpoints"`
	ConnectedCount int               `json:"connectedCount"`
}
