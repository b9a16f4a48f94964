package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/piiderlab/api/internal/domain"
	pfirestore "github.com/piiderlab/api/internal/platform/firestore"
	"github.com/piiderlab/api/internal/repositories"
)

const userCollection = "users"

// UserRepository persists user profile documents keyed by Firebase UID.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile := toDomainProfile(doc.Data)
	profile.ID = doc.ID
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile, nil
}

// Upsert merges the profile into the stored document inside a transaction.
// Empty incoming fields keep whatever the document already holds, so the
// sign-in sync never erases data the user typed at checkout.
func (r *UserRepository) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return domain.UserProfile{}, errors.New("profile id is required")
	}

	now := time.Now().UTC()
	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, profile.ID)
		if err != nil {
			return err
		}

		merged := fromDomainProfile(profile, now)
		snap, err := tx.Get(docRef)
		if err == nil {
			var existing userDocument
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			merged = mergeProfileDocuments(existing, merged)
		}
		return tx.Set(docRef, merged)
	}); err != nil {
		return domain.UserProfile{}, pfirestore.WrapError("users.upsert", err)
	}

	return r.FindByID(ctx, profile.ID)
}

// AddFamilyMember appends a dependent profile to the user document.
func (r *UserRepository) AddFamilyMember(ctx context.Context, userID string, member domain.FamilyMember, now time.Time) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}
	if strings.TrimSpace(member.Name) == "" {
		return domain.UserProfile{}, errors.New("family member name is required")
	}

	entry := familyMemberDocument{
		Name:     strings.TrimSpace(member.Name),
		Relation: strings.TrimSpace(member.Relation),
		Age:      member.Age,
	}
	if _, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "familyMembers", Value: firestore.ArrayUnion(entry)},
		{Path: "updatedAt", Value: now.UTC()},
	}); err != nil {
		return domain.UserProfile{}, err
	}

	return r.FindByID(ctx, userID)
}

// RemoveFamilyMember deletes every member whose stored name matches. The
// filter runs inside a transaction because ArrayRemove would need the full
// member value, which the caller only knows by name.
func (r *UserRepository) RemoveFamilyMember(ctx context.Context, userID string, name string, now time.Time) (domain.UserProfile, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.UserProfile{}, errors.New("family member name is required")
	}

	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		kept := doc.FamilyMembers[:0]
		for _, member := range doc.FamilyMembers {
			if strings.TrimSpace(member.Name) != name {
				kept = append(kept, member)
			}
		}
		if len(kept) == len(doc.FamilyMembers) {
			return nil
		}
		return tx.Update(docRef, []firestore.Update{
			{Path: "familyMembers", Value: kept},
			{Path: "updatedAt", Value: now.UTC()},
		})
	}); err != nil {
		return domain.UserProfile{}, pfirestore.WrapError("users.remove_family_member", err)
	}

	return r.FindByID(ctx, userID)
}

// AddAddress appends to the saved address book. ArrayUnion collapses repeat
// saves of the same string into one entry.
func (r *UserRepository) AddAddress(ctx context.Context, userID string, address string, now time.Time) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.UserProfile{}, errors.New("address is required")
	}

	if _, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "addresses", Value: firestore.ArrayUnion(address)},
		{Path: "updatedAt", Value: now.UTC()},
	}); err != nil {
		return domain.UserProfile{}, err
	}

	return r.FindByID(ctx, userID)
}

// RemoveAddress deletes a saved address. An address not in the book is a
// no-op, not an error.
func (r *UserRepository) RemoveAddress(ctx context.Context, userID string, address string, now time.Time) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.UserProfile{}, errors.New("address is required")
	}

	if _, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "addresses", Value: firestore.ArrayRemove(address)},
		{Path: "updatedAt", Value: now.UTC()},
	}); err != nil {
		return domain.UserProfile{}, err
	}

	return r.FindByID(ctx, userID)
}

type userDocument struct {
	UID               string                 `firestore:"uid"`
	FullName          string                 `firestore:"fullName"`
	Email             string                 `firestore:"email"`
	Mobile            string                 `firestore:"mobile"`
	Address           string                 `firestore:"address"`
	Pincode           string                 `firestore:"pincode"`
	Addresses         []string               `firestore:"addresses"`
	FamilyMembers     []familyMemberDocument `firestore:"familyMembers"`
	IsAdmin           bool                   `firestore:"isAdmin"`
	PreferredLanguage string                 `firestore:"preferredLanguage"`
	CreatedAt         time.Time              `firestore:"createdAt"`
	UpdatedAt         time.Time              `firestore:"updatedAt"`
}

type familyMemberDocument struct {
	Name     string `firestore:"name"`
	Relation string `firestore:"relation"`
	Age      int    `firestore:"age"`
}

func toDomainProfile(doc userDocument) domain.UserProfile {
	members := make([]domain.FamilyMember, 0, len(doc.FamilyMembers))
	for _, m := range doc.FamilyMembers {
		members = append(members, domain.FamilyMember{
			Name:     m.Name,
			Relation: m.Relation,
			Age:      m.Age,
		})
	}
	if len(members) == 0 {
		members = nil
	}

	return domain.UserProfile{
		FullName:          strings.TrimSpace(doc.FullName),
		Email:             strings.TrimSpace(doc.Email),
		Mobile:            strings.TrimSpace(doc.Mobile),
		Address:           strings.TrimSpace(doc.Address),
		Pincode:           strings.TrimSpace(doc.Pincode),
		Addresses:         cloneStringSlice(doc.Addresses),
		FamilyMembers:     members,
		IsAdmin:           doc.IsAdmin,
		PreferredLanguage: strings.TrimSpace(doc.PreferredLanguage),
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

func fromDomainProfile(profile domain.UserProfile, now time.Time) userDocument {
	members := make([]familyMemberDocument, 0, len(profile.FamilyMembers))
	for _, m := range profile.FamilyMembers {
		members = append(members, familyMemberDocument{
			Name:     strings.TrimSpace(m.Name),
			Relation: strings.TrimSpace(m.Relation),
			Age:      m.Age,
		})
	}
	if len(members) == 0 {
		members = nil
	}

	doc := userDocument{
		UID:               strings.TrimSpace(profile.ID),
		FullName:          strings.TrimSpace(profile.FullName),
		Email:             strings.ToLower(strings.TrimSpace(profile.Email)),
		Mobile:            strings.TrimSpace(profile.Mobile),
		Address:           strings.TrimSpace(profile.Address),
		Pincode:           strings.TrimSpace(profile.Pincode),
		Addresses:         cloneStringSlice(profile.Addresses),
		FamilyMembers:     members,
		IsAdmin:           profile.IsAdmin,
		PreferredLanguage: strings.TrimSpace(profile.PreferredLanguage),
		CreatedAt:         profile.CreatedAt,
		UpdatedAt:         now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	return doc
}

// mergeProfileDocuments overlays incoming onto existing, keeping existing
// values wherever the incoming field is empty.
func mergeProfileDocuments(existing, incoming userDocument) userDocument {
	merged := existing
	merged.UID = incoming.UID
	merged.UpdatedAt = incoming.UpdatedAt
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = incoming.CreatedAt
	}
	if incoming.FullName != "" {
		merged.FullName = incoming.FullName
	}
	if incoming.Email != "" {
		merged.Email = incoming.Email
	}
	if incoming.Mobile != "" {
		merged.Mobile = incoming.Mobile
	}
	if incoming.Address != "" {
		merged.Address = incoming.Address
	}
	if incoming.Pincode != "" {
		merged.Pincode = incoming.Pincode
	}
	if len(incoming.Addresses) > 0 {
		merged.Addresses = incoming.Addresses
	}
	if len(incoming.FamilyMembers) > 0 {
		merged.FamilyMembers = incoming.FamilyMembers
	}
	if incoming.PreferredLanguage != "" {
		merged.PreferredLanguage = incoming.PreferredLanguage
	}
	if incoming.IsAdmin {
		merged.IsAdmin = true
	}
	return merged
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

var _ repositories.UserRepository = (*UserRepository)(nil)
