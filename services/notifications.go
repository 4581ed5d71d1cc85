package services

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"github.com/Jahangir-Hossain99/Job-Site/storage"
	"github.com/Jahangir-Hossain99/Job-Site/utils"
)

// NotificationService handles all push notification logic
type NotificationService struct{}

// NewNotificationService creates a new notification service instance
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotificationData represents the data payload for notifications
type NotificationData struct {
	Type       string `json:"type"`
	SenderID   string `json:"senderId,omitempty"`
	SenderKind string `json:"senderKind,omitempty"`
	// Deep linking data
	Screen string `json:"screen"`
	Params string `json:"params"`
}

// getUserPushTokens retrieves all push tokens for a user
func (ns *NotificationService) getUserPushTokens(userID uint) ([]string, error) {
	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %v", err)
	}

	if user.AllowsNotifications == nil || !*user.AllowsNotifications || user.PushTokens == nil {
		return nil, fmt.Errorf("user has notifications disabled or no tokens")
	}

	var tokens []string
	if err := json.Unmarshal(user.PushTokens, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push tokens: %v", err)
	}

	return tokens, nil
}

// SendNotificationToUser sends a notification to a specific user
func (ns *NotificationService) SendNotificationToUser(userID uint, title, body string, data NotificationData) error {
	tokens, err := ns.getUserPushTokens(userID)
	if err != nil {
		log.Printf("Failed to get push tokens for user %d: %v", userID, err)
		return err
	}

	dataMap := map[string]string{
		"type":       data.Type,
		"senderId":   data.SenderID,
		"senderKind": data.SenderKind,
		"screen":     data.Screen,
		"params":     data.Params,
	}

	var lastError error
	for _, token := range tokens {
		if err := utils.SendNotification(token, title, body, dataMap); err != nil {
			log.Printf("Failed to send notification to token %s: %v", token, err)
			lastError = err
		}
	}

	return lastError
}

// SendMessageNotification notifies a user that a chat message arrived.
// Best effort: a push failure never affects delivery to the chat channels.
func (ns *NotificationService) SendMessageNotification(receiverID uint, senderName, content string) error {
	if senderName == "" {
		senderName = "Someone"
	}

	title := "💬 " + senderName
	body := content
	if len([]rune(body)) > 120 {
		body = string([]rune(body)[:117]) + "..."
	}

	data := NotificationData{
		Type:   "chat_message",
		Screen: "Chat",
		Params: fmt.Sprintf(`{"senderName": %q}`, senderName),
	}

	return ns.SendNotificationToUser(receiverID, title, body, data)
}
