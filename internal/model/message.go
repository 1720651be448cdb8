package model

import "time"

// ChatMessage is one exchange: the human turn and the AI reply stored on the
// same row. AIMessage stays nil until generation completes.
type ChatMessage struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	SessionID        string       `gorm:"size:100;not null;index" json:"session_id"`
	Session          *ChatSession `gorm:"foreignKey:SessionID;references:SessionID" json:"-"`
	HumanMessage     string       `gorm:"type:text;not null" json:"human_message"`
	AIMessage        *string      `gorm:"column:ai_message;type:text" json:"ai_message"`
	DateTime         time.Time    `gorm:"not null;index" json:"date_time"`
	Duration         *float64     `json:"duration"`
	PositiveFeedback bool         `gorm:"not null" json:"positive_feedback"`
	NegativeFeedback bool         `gorm:"not null" json:"negative_feedback"`
	Status           RecordStatus `gorm:"size:16;not null;index" json:"-"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
