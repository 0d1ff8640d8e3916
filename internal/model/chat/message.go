package chat

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Turn persists a single user or bot message. User turns carry the id the
// client sent, which is only unique within its session; bot turns get a
// server-generated id. Key is the row identity.
type Turn struct {
	Key       uint      `gorm:"column:turn_key;primaryKey;autoIncrement" json:"-"`
	ID        string    `gorm:"size:64;not null;uniqueIndex:idx_session_message,priority:2" json:"id"`
	SessionID string    `gorm:"size:36;not null;index:idx_session_created,priority:1;uniqueIndex:idx_session_message,priority:1" json:"sessionId"`
	PersonaID *uint     `json:"personaId"`
	IsUser    bool      `gorm:"not null" json:"isUser"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:idx_session_created,priority:2" json:"createdAt"`

	Response *ResponseDetail `gorm:"foreignKey:TurnKey;references:Key;constraint:OnDelete:CASCADE" json:"response,omitempty"`
}

// TableName keeps the table name used by the existing database.
func (Turn) TableName() string { return "Chat" }

// ResponseDetail carries provenance and feedback for a bot turn.
// PromptChatID is the client id of the prompting user turn in the same
// session and PromptTurnKey is that turn's row key, when it was stored.
// IsHelpful is nil until the user rates the answer.
type ResponseDetail struct {
	TurnKey       uint           `gorm:"primaryKey;autoIncrement:false" json:"-"`
	ChatID        string         `gorm:"size:64;not null;uniqueIndex" json:"chatId"`
	PromptChatID  *string        `gorm:"size:64" json:"promptChatId,omitempty"`
	PromptTurnKey *uint          `gorm:"index" json:"-"`
	ToolName      *string        `gorm:"size:100" json:"toolName,omitempty"`
	ToolMetadata  datatypes.JSON `json:"toolMetadata,omitempty"`
	IsHelpful     *bool          `json:"isHelpful"`
}

// TableName keeps the table name used by the existing database.
func (ResponseDetail) TableName() string { return "ChatbotResponse" }

// ToolMetadata is the structured payload stored alongside a tool answer.
type ToolMetadata struct {
	LoginRequired    *bool           `json:"login_required,omitempty"`
	RelatedQuestions json.RawMessage `json:"related_questions,omitempty"`
	CardList         json.RawMessage `json:"card_list,omitempty"`
}

// Empty reports whether no tool field was captured.
func (m ToolMetadata) Empty() bool {
	return m.LoginRequired == nil && len(m.RelatedQuestions) == 0 && len(m.CardList) == 0
}
