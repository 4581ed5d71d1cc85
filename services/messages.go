package services

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"gorm.io/gorm"
)

var (
	ErrEmptyContent    = errors.New("message content must not be empty")
	ErrContentTooLong  = fmt.Errorf("message content exceeds %d characters", models.MaxMessageContentLength)
	ErrMissingReceiver = errors.New("message receiver is required")
)

// IsValidationError reports whether err is caller input that was rejected,
// as opposed to the store being unavailable.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrContentTooLong) ||
		errors.Is(err, ErrMissingReceiver) ||
		errors.Is(err, ErrUnknownPartyKind)
}

// MessageStore is the single write path for chat messages. Everything else
// only reads.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append validates and persists one message, assigning its id and timestamp.
func (s *MessageStore) Append(sender, receiver PartyRef, content string) (*models.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > models.MaxMessageContentLength {
		return nil, ErrContentTooLong
	}
	if !models.KnownPartyKind(sender.Kind) {
		return nil, fmt.Errorf("%w: sender kind %q", ErrUnknownPartyKind, sender.Kind)
	}
	if !models.KnownPartyKind(receiver.Kind) {
		return nil, fmt.Errorf("%w: receiver kind %q", ErrUnknownPartyKind, receiver.Kind)
	}
	if receiver.ID == 0 {
		return nil, ErrMissingReceiver
	}

	message := models.Message{
		SenderID:     sender.ID,
		SenderKind:   sender.Kind,
		ReceiverID:   receiver.ID,
		ReceiverKind: receiver.Kind,
		Content:      content,
	}

	if err := s.db.Create(&message).Error; err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	return &message, nil
}

// FindBetween returns every message of the two-party thread {a, b},
// regardless of direction, ascending by creation time (id breaks ties).
func (s *MessageStore) FindBetween(a, b PartyRef) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.
		Where(
			s.db.Where("sender_id = ? AND sender_kind = ? AND receiver_id = ? AND receiver_kind = ?",
				a.ID, a.Kind, b.ID, b.Kind).
				Or("sender_id = ? AND sender_kind = ? AND receiver_id = ? AND receiver_kind = ?",
					b.ID, b.Kind, a.ID, a.Kind)).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return messages, nil
}

// FindAllInvolving returns every message the party sent or received, in no
// particular order. The aggregator re-sorts.
func (s *MessageStore) FindAllInvolving(party PartyRef) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.
		Where("(sender_id = ? AND sender_kind = ?) OR (receiver_id = ? AND receiver_kind = ?)",
			party.ID, party.Kind, party.ID, party.Kind).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return messages, nil
}
