// Package domain defines the core chat types shared across the service.
package domain

import (
	"time"
)

// Role identifies who authored a chat entry.
type Role string

const (
	// RoleUser marks entries typed by the person in the browser.
	RoleUser Role = "user"
	// RoleAssistant marks entries produced by the agent pipeline.
	RoleAssistant Role = "assistant"
)

// ChatEntry is a single line of the displayed transcript.
// Entries are immutable once appended; display order equals append order.
type ChatEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	SessionID string    `json:"-"`
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
