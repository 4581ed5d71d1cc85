package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"gorm.io/gorm"
)

var (
	ErrPartyNotFound    = errors.New("party not found")
	ErrUnknownPartyKind = errors.New("unknown party kind")
)

// PartyRef is a tagged reference into one of the two party directories.
type PartyRef struct {
	ID   uint   `json:"id"`
	Kind string `json:"kind"`
}

func (p PartyRef) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// ResolvedIdentity is the display record for a party. Name follows the
// kind-specific rule: users show "First Last", companies show the company
// name.
type ResolvedIdentity struct {
	ID    uint   `json:"id"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type partyLookup func(db *gorm.DB, id uint) (ResolvedIdentity, error)

// IdentityResolver maps party references to display records through a
// dispatch table keyed by kind.
type IdentityResolver struct {
	db      *gorm.DB
	lookups map[string]partyLookup
}

func NewIdentityResolver(db *gorm.DB) *IdentityResolver {
	return &IdentityResolver{
		db: db,
		lookups: map[string]partyLookup{
			models.PartyKindUser:    resolveUser,
			models.PartyKindCompany: resolveCompany,
		},
	}
}

func (r *IdentityResolver) Resolve(ref PartyRef) (ResolvedIdentity, error) {
	lookup, ok := r.lookups[ref.Kind]
	if !ok {
		return ResolvedIdentity{}, fmt.Errorf("%w: %q", ErrUnknownPartyKind, ref.Kind)
	}
	return lookup(r.db, ref.ID)
}

// ResolveMany resolves a batch of references, deduplicating lookups.
// References that fail to resolve come back as the Unknown sentinel instead
// of failing the batch.
func (r *IdentityResolver) ResolveMany(refs []PartyRef) map[PartyRef]ResolvedIdentity {
	resolved := make(map[PartyRef]ResolvedIdentity, len(refs))
	for _, ref := range refs {
		if _, done := resolved[ref]; done {
			continue
		}
		identity, err := r.Resolve(ref)
		if err != nil {
			identity = UnknownIdentity(ref)
		}
		resolved[ref] = identity
	}
	return resolved
}

// UnknownIdentity stands in for a party that could not be resolved, e.g. a
// deleted account on the other side of an old conversation.
func UnknownIdentity(ref PartyRef) ResolvedIdentity {
	return ResolvedIdentity{ID: ref.ID, Kind: ref.Kind, Name: "Unknown"}
}

func resolveUser(db *gorm.DB, id uint) (ResolvedIdentity, error) {
	var user models.User
	result := db.Select("id, first_name, last_name, email").Where("id = ?", id).Limit(1).Find(&user)
	if result.Error != nil {
		return ResolvedIdentity{}, result.Error
	}
	if result.RowsAffected == 0 {
		return ResolvedIdentity{}, ErrPartyNotFound
	}

	return ResolvedIdentity{
		ID:    user.ID,
		Kind:  models.PartyKindUser,
		Name:  strings.TrimSpace(user.FirstName + " " + user.LastName),
		Email: user.Email,
	}, nil
}

func resolveCompany(db *gorm.DB, id uint) (ResolvedIdentity, error) {
	var company models.Company
	result := db.Select("id, name, email").Where("id = ?", id).Limit(1).Find(&company)
	if result.Error != nil {
		return ResolvedIdentity{}, result.Error
	}
	if result.RowsAffected == 0 {
		return ResolvedIdentity{}, ErrPartyNotFound
	}

	return ResolvedIdentity{
		ID:    company.ID,
		Kind:  models.PartyKindCompany,
		Name:  company.Name,
		Email: company.Email,
	}, nil
}
