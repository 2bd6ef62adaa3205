package models

import "time"

/** --------------------ENTITIES-------------------- */
// User is the public profile of a marketplace participant. Accounts and
// credentials live in the marketplace auth service; chat only keeps what it
// shows next to a conversation.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id" bson:"_id"`
	Name      string    `gorm:"size:255;not null" json:"name" bson:"name"`
	Email     string    `gorm:"size:255;not null;index" json:"email" bson:"email"`
	Phone     string    `gorm:"size:32" json:"phone,omitempty" bson:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

/** -------------------- DTOs -------------------- */
// Response
type UserResponse struct {
	User *User `json:"user"`
}
