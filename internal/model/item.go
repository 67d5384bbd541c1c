package model

import "time"

// Item is a to-do entry as stored by the backend.
type Item struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	IsDone    bool      `json:"isDone"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateItemInput carries the fields accepted by a create call.
type CreateItemInput struct {
	Status string `json:"status"`
	IsDone bool   `json:"isDone"`
}
