package services

import (
	"testing"
	"time"

	"github.com/Jahangir-Hossain99/Job-Site/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Company{}, &models.Message{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, first, last, email string) models.User {
	t.Helper()

	user := models.User{FirstName: first, LastName: last, Email: email}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedCompany(t *testing.T, db *gorm.DB, name, email string) models.Company {
	t.Helper()

	company := models.Company{Name: name, Email: email}
	require.NoError(t, db.Create(&company).Error)
	return company
}

// seedMessage inserts directly, bypassing Append, so tests control ids and
// timestamps.
func seedMessage(t *testing.T, db *gorm.DB, id uint, sender, receiver PartyRef, content string, at time.Time) models.Message {
	t.Helper()

	message := models.Message{
		SenderID:     sender.ID,
		SenderKind:   sender.Kind,
		ReceiverID:   receiver.ID,
		ReceiverKind: receiver.Kind,
		Content:      content,
	}
	message.ID = id
	message.CreatedAt = at
	require.NoError(t, db.Create(&message).Error)
	return message
}

func userRef(id uint) PartyRef    { return PartyRef{ID: id, Kind: models.PartyKindUser} }
func companyRef(id uint) PartyRef { return PartyRef{ID: id, Kind: models.PartyKindCompany} }
