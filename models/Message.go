package models

import (
	"gorm.io/gorm"
)

// Party kinds a message endpoint can belong to. A sender or receiver id is
// only meaningful together with its kind: user ids and company ids live in
// separate tables.
const (
	PartyKindUser    = "user"
	PartyKindCompany = "company"
)

// MaxMessageContentLength is counted in runes, not bytes.
const MaxMessageContentLength = 1000

// Message is a single direct message between two parties. Messages are
// append-only: no edit or delete routes exist.
type Message struct {
	gorm.Model
	SenderID     uint   `json:"senderID" gorm:"not null;index:idx_messages_sender"`
	SenderKind   string `json:"senderKind" gorm:"size:16;not null;index:idx_messages_sender"`
	ReceiverID   uint   `json:"receiverID" gorm:"not null;index:idx_messages_receiver"`
	ReceiverKind string `json:"receiverKind" gorm:"size:16;not null;index:idx_messages_receiver"`
	Content      string `json:"content" gorm:"type:text;not null"`
}

// KnownPartyKind reports whether kind names one of the two party directories.
func KnownPartyKind(kind string) bool {
	return kind == PartyKindUser || kind == PartyKindCompany
}
