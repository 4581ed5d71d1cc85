package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"github.com/Jahangir-Hossain99/Job-Site/services"
	"github.com/Jahangir-Hossain99/Job-Site/storage"
	"github.com/Jahangir-Hossain99/Job-Site/utils"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

// chatHub carries realtime fan-out for the REST send fallback. Set from
// main; nil (e.g. in tests) just skips push delivery.
var chatHub *services.ChatHub

// Chat read/write services, built once around the database handle instead of
// per request.
var (
	chatStore      *services.MessageStore
	chatResolver   *services.IdentityResolver
	chatAggregator *services.ConversationAggregator
)

func UseChatHub(hub *services.ChatHub) {
	chatHub = hub
}

func UseChatDB(db *gorm.DB) {
	chatStore = services.NewMessageStore(db)
	chatResolver = services.NewIdentityResolver(db)
	chatAggregator = services.NewConversationAggregator(chatStore, chatResolver)
}

// GetConversations lists the caller's conversations, most recent first.
func GetConversations(ctx iris.Context) {
	id, kind := currentParty(ctx)
	party := services.PartyRef{ID: id, Kind: kind}

	conversations, err := chatAggregator.Aggregate(party)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"conversations": conversations})
}

// GetChatHistory replays the full thread with the party named in the URL.
// A never-contacted or nonexistent other party yields an empty list, not an
// error.
func GetChatHistory(ctx iris.Context) {
	otherKind := ctx.Params().Get("kind")
	otherID, idErr := ctx.Params().GetUint("id")
	if idErr != nil || !models.KnownPartyKind(otherKind) {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "A valid party kind and id are required.", ctx)
		return
	}

	id, kind := currentParty(ctx)
	self := services.PartyRef{ID: id, Kind: kind}
	other := services.PartyRef{ID: otherID, Kind: otherKind}

	messages, err := chatStore.FindBetween(self, other)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"messages": services.AnnotateHistory(chatResolver, messages)})
}

type SendMessageInput struct {
	ReceiverID   uint   `json:"receiverID" validate:"required"`
	ReceiverKind string `json:"receiverKind" validate:"required,oneof=user company"`
	Content      string `json:"content" validate:"required,max=1000"`
}

// SendMessage is the REST fallback for clients without a socket. The stored
// message still fans out to any live sessions, but no delivery is promised.
func SendMessage(ctx iris.Context) {
	var input SendMessageInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	id, kind := currentParty(ctx)
	sender := services.PartyRef{ID: id, Kind: kind}
	receiver := services.PartyRef{ID: input.ReceiverID, Kind: input.ReceiverKind}

	message, err := chatStore.Append(sender, receiver, input.Content)
	if err != nil {
		if services.IsValidationError(err) {
			utils.CreateError(iris.StatusBadRequest, "Validation Error", err.Error(), ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}

	if chatHub != nil {
		chatHub.DeliverMessage(message)
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(message)
}

// Typing marks the caller as typing to the named party for 5 seconds.
func Typing(ctx iris.Context) {
	otherKind := ctx.Params().Get("kind")
	otherID, idErr := ctx.Params().GetUint("id")
	if idErr != nil || !models.KnownPartyKind(otherKind) {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	id, kind := currentParty(ctx)
	key := typingKey(kind, id, otherKind, otherID)
	storage.Redis.Set(ctx, key, "1", 5*time.Second)
	ctx.JSON(iris.Map{"success": true})
}

// ListTyping reports whether the named party is currently typing to the
// caller.
func ListTyping(ctx iris.Context) {
	otherKind := ctx.Params().Get("kind")
	otherID, idErr := ctx.Params().GetUint("id")
	if idErr != nil || !models.KnownPartyKind(otherKind) {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	id, kind := currentParty(ctx)
	key := typingKey(otherKind, otherID, kind, id)
	typing := false
	if val, err := storage.Redis.Get(ctx, key).Result(); err == nil && val == "1" {
		typing = true
	}
	ctx.JSON(iris.Map{"success": true, "typing": typing})
}

func typingKey(fromKind string, fromID uint, toKind string, toID uint) string {
	return fmt.Sprintf("typing:%s:%d:%s:%d", fromKind, fromID, toKind, toID)
}
