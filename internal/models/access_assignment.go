package models

import "time"

// AccessAssignment grants a user visibility of one practice or client. Users
// in privileged roles see every entity and need no assignments.
type AccessAssignment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:uq_access_assignment" json:"userId"`
	EntityClass string    `gorm:"size:16;not null;uniqueIndex:uq_access_assignment" json:"entityClass"`
	EntityID    string    `gorm:"size:64;not null;uniqueIndex:uq_access_assignment" json:"entityId"`
	GrantedBy   string    `gorm:"size:64" json:"grantedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
