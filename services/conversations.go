package services

import (
	"sort"
	"time"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"github.com/samber/lo"
)

// ConversationSummary is one entry of a party's conversation list: the
// thread's most recent message plus the resolved other participant.
type ConversationSummary struct {
	LastMessage models.Message   `json:"lastMessage"`
	OtherParty  ResolvedIdentity `json:"otherParty"`
}

type conversationSource interface {
	FindAllInvolving(party PartyRef) ([]models.Message, error)
}

type partyResolver interface {
	Resolve(ref PartyRef) (ResolvedIdentity, error)
	ResolveMany(refs []PartyRef) map[PartyRef]ResolvedIdentity
}

// ConversationAggregator derives a party's conversation list on read.
// Conversations are not stored anywhere: a thread is the equivalence class
// of messages sharing the same unordered pair of participants.
type ConversationAggregator struct {
	source   conversationSource
	resolver partyResolver
}

func NewConversationAggregator(source conversationSource, resolver partyResolver) *ConversationAggregator {
	return &ConversationAggregator{source: source, resolver: resolver}
}

// Aggregate returns the party's conversations, most recent first. A party
// with no messages gets an empty list. A thread whose other participant no
// longer resolves is kept with the Unknown identity rather than dropped.
func (a *ConversationAggregator) Aggregate(party PartyRef) ([]ConversationSummary, error) {
	messages, err := a.source.FindAllInvolving(party)
	if err != nil {
		return nil, err
	}

	threads := lo.GroupBy(messages, conversationKey)

	summaries := make([]ConversationSummary, 0, len(threads))
	for _, thread := range threads {
		last := lo.MaxBy(thread, moreRecent)
		other := otherParty(last, party)

		identity, resolveErr := a.resolver.Resolve(other)
		if resolveErr != nil {
			identity = UnknownIdentity(other)
		}

		summaries = append(summaries, ConversationSummary{
			LastMessage: last,
			OtherParty:  identity,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return moreRecent(summaries[i].LastMessage, summaries[j].LastMessage)
	})

	return summaries, nil
}

// moreRecent orders messages by creation time; equal timestamps fall back to
// the larger id so representative selection stays deterministic.
func moreRecent(a, b models.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// conversationKey canonicalises the unordered participant pair. The key
// includes the kinds: user 7 and company 7 are different parties.
func conversationKey(m models.Message) string {
	sender := PartyRef{ID: m.SenderID, Kind: m.SenderKind}
	receiver := PartyRef{ID: m.ReceiverID, Kind: m.ReceiverKind}
	a, b := sender.String(), receiver.String()
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func otherParty(m models.Message, self PartyRef) PartyRef {
	sender := PartyRef{ID: m.SenderID, Kind: m.SenderKind}
	if sender == self {
		return PartyRef{ID: m.ReceiverID, Kind: m.ReceiverKind}
	}
	return sender
}

// HistoryEntry is a thread message annotated with both display identities,
// ready for clients.
type HistoryEntry struct {
	ID        uint             `json:"id"`
	Sender    ResolvedIdentity `json:"sender"`
	Receiver  ResolvedIdentity `json:"receiver"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"createdAt"`
}

// AnnotateHistory resolves every distinct participant once and attaches the
// display identities to each message.
func AnnotateHistory(resolver partyResolver, messages []models.Message) []HistoryEntry {
	refs := make([]PartyRef, 0, 2*len(messages))
	for _, m := range messages {
		refs = append(refs,
			PartyRef{ID: m.SenderID, Kind: m.SenderKind},
			PartyRef{ID: m.ReceiverID, Kind: m.ReceiverKind})
	}
	identities := resolver.ResolveMany(refs)

	entries := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, HistoryEntry{
			ID:        m.ID,
			Sender:    identities[PartyRef{ID: m.SenderID, Kind: m.SenderKind}],
			Receiver:  identities[PartyRef{ID: m.ReceiverID, Kind: m.ReceiverKind}],
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return entries
}
