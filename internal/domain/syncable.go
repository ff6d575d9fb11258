package domain

import "time"

// Syncable carries the identity and timestamps shared by every stored document.
type Syncable struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp to the current time.
func (s *Syncable) Touch() {
	s.UpdatedAt = time.Now()
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
// Call this when creating a new entity.
func (s *Syncable) InitTimestamps() {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
}

// GetID returns the document id.
func (s *Syncable) GetID() string {
	return s.ID
}

// Created returns the creation time, used to keep listings in insertion order.
func (s *Syncable) Created() time.Time {
	return s.CreatedAt
}
