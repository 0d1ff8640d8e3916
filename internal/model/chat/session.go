package chat

import "time"

// Session is the durable record of one WebSocket conversation. PersonaID
// stays nil until the client logs in.
type Session struct {
	ID        string    `gorm:"column:session_id;size:36;primaryKey" json:"sessionId"`
	PersonaID *uint     `gorm:"index" json:"personaId"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`

	Turns []Turn `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName keeps the table name used by the existing database.
func (Session) TableName() string { return "ChatSession" }
