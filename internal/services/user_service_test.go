package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/piiderlab/api/internal/domain"
	"github.com/piiderlab/api/internal/repositories"
)

type stubUserRepository struct {
	profiles map[string]domain.UserProfile
	upserts  int
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{profiles: map[string]domain.UserProfile{}}
}

func (r *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return domain.UserProfile{}, &fakeRepoError{notFound: true}
	}
	return profile, nil
}

func (r *stubUserRepository) Upsert(ctx context.Context, patch domain.UserProfile) (domain.UserProfile, error) {
	r.upserts++
	stored := r.profiles[patch.ID]
	stored.ID = patch.ID
	if patch.FullName != "" {
		stored.FullName = patch.FullName
	}
	if patch.Email != "" {
		stored.Email = patch.Email
	}
	if patch.Mobile != "" {
		stored.Mobile = patch.Mobile
	}
	if patch.Address != "" {
		stored.Address = patch.Address
	}
	if patch.Pincode != "" {
		stored.Pincode = patch.Pincode
	}
	if patch.PreferredLanguage != "" {
		stored.PreferredLanguage = patch.PreferredLanguage
	}
	r.profiles[patch.ID] = stored
	return stored, nil
}

func (r *stubUserRepository) AddFamilyMember(ctx context.Context, userID string, member domain.FamilyMember, now time.Time) (domain.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return domain.UserProfile{}, &fakeRepoError{notFound: true}
	}
	profile.FamilyMembers = append(profile.FamilyMembers, member)
	profile.UpdatedAt = now
	r.profiles[userID] = profile
	return profile, nil
}

func (r *stubUserRepository) RemoveFamilyMember(ctx context.Context, userID string, name string, now time.Time) (domain.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return domain.UserProfile{}, &fakeRepoError{notFound: true}
	}
	kept := make([]domain.FamilyMember, 0, len(profile.FamilyMembers))
	for _, member := range profile.FamilyMembers {
		if member.Name != name {
			kept = append(kept, member)
		}
	}
	profile.FamilyMembers = kept
	profile.UpdatedAt = now
	r.profiles[userID] = profile
	return profile, nil
}

func (r *stubUserRepository) AddAddress(ctx context.Context, userID string, address string, now time.Time) (domain.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return domain.UserProfile{}, &fakeRepoError{notFound: true}
	}
	for _, existing := range profile.Addresses {
		if existing == address {
			return profile, nil
		}
	}
	profile.Addresses = append(profile.Addresses, address)
	profile.UpdatedAt = now
	r.profiles[userID] = profile
	return profile, nil
}

func (r *stubUserRepository) RemoveAddress(ctx context.Context, userID string, address string, now time.Time) (domain.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return domain.UserProfile{}, &fakeRepoError{notFound: true}
	}
	kept := make([]string, 0, len(profile.Addresses))
	for _, existing := range profile.Addresses {
		if existing != address {
			kept = append(kept, existing)
		}
	}
	profile.Addresses = kept
	profile.UpdatedAt = now
	r.profiles[userID] = profile
	return profile, nil
}

var _ repositories.UserRepository = (*stubUserRepository)(nil)

func newTestUserService(t *testing.T, repo repositories.UserRepository) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc
}

func TestEnsureProfileDefaultsNameFromEmail(t *testing.T) {
	repo := newStubUserRepository()
	svc := newTestUserService(t, repo)

	profile, err := svc.EnsureProfile(context.Background(), EnsureProfileCommand{
		UserID: "uid-1",
		Email:  "Priya.Sharma@Example.com",
	})
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if profile.Email != "priya.sharma@example.com" {
		t.Fatalf("expected lowercased email, got %q", profile.Email)
	}
	if profile.FullName != "priya.sharma" {
		t.Fatalf("expected email local part as name, got %q", profile.FullName)
	}
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	repo := newStubUserRepository()
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	cmd := EnsureProfileCommand{
		UserID:      "uid-1",
		Email:       "priya@example.com",
		DisplayName: "Priya Sharma",
	}
	first, err := svc.EnsureProfile(ctx, cmd)
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	second, err := svc.EnsureProfile(ctx, cmd)
	if err != nil {
		t.Fatalf("EnsureProfile repeat: %v", err)
	}
	if first.FullName != second.FullName || first.Email != second.Email {
		t.Fatalf("repeat ensure diverged: %+v vs %+v", first, second)
	}
}

func TestEnsureProfileCanonicalisesLocale(t *testing.T) {
	repo := newStubUserRepository()
	svc := newTestUserService(t, repo)

	profile, err := svc.EnsureProfile(context.Background(), EnsureProfileCommand{
		UserID: "uid-1",
		Email:  "priya@example.com",
		Locale: "en_IN",
	})
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if profile.PreferredLanguage != "en-IN" {
		t.Fatalf("expected canonical tag en-IN, got %q", profile.PreferredLanguage)
	}
}

func TestEnsureProfileNeverClobbersStoredName(t *testing.T) {
	repo := newStubUserRepository()
	repo.profiles["uid-1"] = domain.UserProfile{
		ID:       "uid-1",
		FullName: "Priya Sharma",
		Email:    "priya@example.com",
		Mobile:   "9876543210",
	}
	svc := newTestUserService(t, repo)

	// A later session without a display name must not wipe the stored one.
	profile, err := svc.EnsureProfile(context.Background(), EnsureProfileCommand{
		UserID: "uid-1",
		Email:  "priya@example.com",
	})
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if profile.Mobile != "9876543210" {
		t.Fatalf("stored mobile lost: %+v", profile)
	}
}

func TestUpdateProfilePatchesOnlyProvidedFields(t *testing.T) {
	repo := newStubUserRepository()
	repo.profiles["uid-1"] = domain.UserProfile{
		ID:       "uid-1",
		FullName: "Priya Sharma",
		Email:    "priya@example.com",
		Address:  "12 MG Road",
	}
	svc := newTestUserService(t, repo)

	mobile := " 9876543210 "
	profile, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID: "uid-1",
		Mobile: &mobile,
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if profile.Mobile != "9876543210" {
		t.Fatalf("expected trimmed mobile, got %q", profile.Mobile)
	}
	if profile.Address != "12 MG Road" || profile.FullName != "Priya Sharma" {
		t.Fatalf("untouched fields changed: %+v", profile)
	}
}

func TestUpdateProfileRejectsBadInput(t *testing.T) {
	repo := newStubUserRepository()
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	if _, err := svc.UpdateProfile(ctx, UpdateProfileCommand{UserID: "uid-1"}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for empty patch, got %v", err)
	}

	empty := "  "
	if _, err := svc.UpdateProfile(ctx, UpdateProfileCommand{UserID: "uid-1", FullName: &empty}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}

	badTag := "not a locale"
	if _, err := svc.UpdateProfile(ctx, UpdateProfileCommand{UserID: "uid-1", PreferredLanguage: &badTag}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for bad locale, got %v", err)
	}
}

func TestAddFamilyMemberValidatesAndAppends(t *testing.T) {
	repo := newStubUserRepository()
	repo.profiles["uid-1"] = domain.UserProfile{ID: "uid-1", FullName: "Priya Sharma"}
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	if _, err := svc.AddFamilyMember(ctx, AddFamilyMemberCommand{UserID: "uid-1", Name: " "}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := svc.AddFamilyMember(ctx, AddFamilyMemberCommand{UserID: "uid-1", Name: "Amma", Age: 200}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for absurd age, got %v", err)
	}

	profile, err := svc.AddFamilyMember(ctx, AddFamilyMemberCommand{
		UserID: "uid-1", Name: "Rohan Sharma", Relation: "son", Age: 12,
	})
	if err != nil {
		t.Fatalf("AddFamilyMember: %v", err)
	}
	if len(profile.FamilyMembers) != 1 || profile.FamilyMembers[0].Name != "Rohan Sharma" {
		t.Fatalf("unexpected family members %+v", profile.FamilyMembers)
	}
}

func TestRemoveFamilyMemberByName(t *testing.T) {
	repo := newStubUserRepository()
	repo.profiles["uid-1"] = domain.UserProfile{
		ID: "uid-1",
		FamilyMembers: []domain.FamilyMember{
			{Name: "Rohan Sharma", Relation: "son", Age: 12},
			{Name: "Meera Sharma", Relation: "daughter", Age: 9},
		},
	}
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	if _, err := svc.RemoveFamilyMember(ctx, RemoveFamilyMemberCommand{UserID: "uid-1", Name: "  "}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}

	profile, err := svc.RemoveFamilyMember(ctx, RemoveFamilyMemberCommand{UserID: "uid-1", Name: "Rohan Sharma"})
	if err != nil {
		t.Fatalf("RemoveFamilyMember: %v", err)
	}
	if len(profile.FamilyMembers) != 1 || profile.FamilyMembers[0].Name != "Meera Sharma" {
		t.Fatalf("unexpected family members %+v", profile.FamilyMembers)
	}

	// Removing an absent name leaves the profile unchanged.
	profile, err = svc.RemoveFamilyMember(ctx, RemoveFamilyMemberCommand{UserID: "uid-1", Name: "Rohan Sharma"})
	if err != nil {
		t.Fatalf("RemoveFamilyMember repeat: %v", err)
	}
	if len(profile.FamilyMembers) != 1 {
		t.Fatalf("repeat removal changed the profile: %+v", profile.FamilyMembers)
	}
}

func TestAddressBookAddAndRemove(t *testing.T) {
	repo := newStubUserRepository()
	repo.profiles["uid-1"] = domain.UserProfile{ID: "uid-1", FullName: "Priya Sharma"}
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	if _, err := svc.AddAddress(ctx, AddAddressCommand{UserID: "uid-1", Address: "  "}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for blank address, got %v", err)
	}
	long := strings.Repeat("x", maxSavedAddressLength+1)
	if _, err := svc.AddAddress(ctx, AddAddressCommand{UserID: "uid-1", Address: long}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for oversized address, got %v", err)
	}

	address := " 42 Residency Road, Bengaluru 560025 "
	profile, err := svc.AddAddress(ctx, AddAddressCommand{UserID: "uid-1", Address: address})
	if err != nil {
		t.Fatalf("AddAddress: %v", err)
	}
	if len(profile.Addresses) != 1 || profile.Addresses[0] != "42 Residency Road, Bengaluru 560025" {
		t.Fatalf("expected trimmed saved address, got %+v", profile.Addresses)
	}

	// A repeat save collapses into the existing entry.
	profile, err = svc.AddAddress(ctx, AddAddressCommand{UserID: "uid-1", Address: address})
	if err != nil {
		t.Fatalf("AddAddress repeat: %v", err)
	}
	if len(profile.Addresses) != 1 {
		t.Fatalf("duplicate save must collapse, got %+v", profile.Addresses)
	}

	profile, err = svc.RemoveAddress(ctx, RemoveAddressCommand{UserID: "uid-1", Address: address})
	if err != nil {
		t.Fatalf("RemoveAddress: %v", err)
	}
	if len(profile.Addresses) != 0 {
		t.Fatalf("expected empty address book, got %+v", profile.Addresses)
	}

	// Removing an absent address is a no-op.
	if _, err := svc.RemoveAddress(ctx, RemoveAddressCommand{UserID: "uid-1", Address: address}); err != nil {
		t.Fatalf("RemoveAddress on absent entry: %v", err)
	}
}

func TestGetProfileMapsNotFound(t *testing.T) {
	repo := newStubUserRepository()
	svc := newTestUserService(t, repo)

	_, err := svc.GetProfile(context.Background(), "uid-absent")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), "user service") {
		t.Fatalf("unexpected error text %q", err)
	}
}
