package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/piiderlab/api/internal/domain"
	"github.com/piiderlab/api/internal/repositories"
)

// ErrUserInvalidInput indicates the caller supplied invalid input.
var ErrUserInvalidInput = errors.New("user service: invalid input")

// ErrUserNotFound indicates the profile document does not exist.
var ErrUserNotFound = errors.New("user service: not found")

// ErrUserStoreError indicates the backing store failed.
var ErrUserStoreError = errors.New("user service: store error")

var (
	errUserRepositoryRequired = errors.New("user service: repository is required")
	errUserClockRequired      = errors.New("user service: clock is required")
)

const (
	maxFamilyMemberAge    = 130
	maxSavedAddressLength = 500
)

// UserServiceDeps wires the user service dependencies.
type UserServiceDeps struct {
	Repository repositories.UserRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type userService struct {
	repo   repositories.UserRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Repository == nil {
		return nil, errUserRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errUserClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// GetProfile loads the users/{uid} document.
func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}

	profile, err := s.repo.FindByID(ctx, uid)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return profile, nil
}

// EnsureProfile creates the profile on first login and keeps identity fields
// in sync on later logins. The write lands before the call returns, so the
// session never races against profile propagation.
func (s *userService) EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if uid == "" || email == "" {
		return UserProfile{}, ErrUserInvalidInput
	}

	fullName := strings.TrimSpace(cmd.DisplayName)
	if fullName == "" {
		// Google popup sign-ups arrive without a stored profile; the email
		// local part makes a serviceable first name.
		fullName = emailLocalPart(email)
	}

	locale := ""
	if trimmed := strings.TrimSpace(cmd.Locale); trimmed != "" {
		canonical, err := canonicaliseLanguageTag(trimmed)
		if err == nil {
			locale = canonical
		}
	}

	profile, err := s.repo.Upsert(ctx, domain.UserProfile{
		ID:                uid,
		FullName:          fullName,
		Email:             email,
		PreferredLanguage: locale,
	})
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}

	s.logger(ctx, "user.profile_ensured", map[string]any{"userID": uid})
	return profile, nil
}

// UpdateProfile patches address-book fields.
func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}
	if cmd.FullName == nil && cmd.Mobile == nil && cmd.Address == nil && cmd.Pincode == nil && cmd.PreferredLanguage == nil {
		return UserProfile{}, fmt.Errorf("%w: no fields to update", ErrUserInvalidInput)
	}

	patch := domain.UserProfile{ID: uid}
	if cmd.FullName != nil {
		name := strings.TrimSpace(*cmd.FullName)
		if name == "" {
			return UserProfile{}, fmt.Errorf("%w: full name cannot be empty", ErrUserInvalidInput)
		}
		patch.FullName = name
	}
	if cmd.Mobile != nil {
		patch.Mobile = strings.TrimSpace(*cmd.Mobile)
	}
	if cmd.Address != nil {
		patch.Address = strings.TrimSpace(*cmd.Address)
	}
	if cmd.Pincode != nil {
		patch.Pincode = strings.TrimSpace(*cmd.Pincode)
	}
	if cmd.PreferredLanguage != nil {
		canonical, err := canonicaliseLanguageTag(*cmd.PreferredLanguage)
		if err != nil {
			return UserProfile{}, fmt.Errorf("%w: preferred language is invalid", ErrUserInvalidInput)
		}
		patch.PreferredLanguage = canonical
	}

	profile, err := s.repo.Upsert(ctx, patch)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return profile, nil
}

// AddFamilyMember registers a dependent bookable under the account.
func (s *userService) AddFamilyMember(ctx context.Context, cmd AddFamilyMemberCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return UserProfile{}, fmt.Errorf("%w: family member name is required", ErrUserInvalidInput)
	}
	if cmd.Age < 0 || cmd.Age > maxFamilyMemberAge {
		return UserProfile{}, fmt.Errorf("%w: family member age is out of range", ErrUserInvalidInput)
	}

	profile, err := s.repo.AddFamilyMember(ctx, uid, domain.FamilyMember{
		Name:     name,
		Relation: strings.TrimSpace(cmd.Relation),
		Age:      cmd.Age,
	}, s.now())
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return profile, nil
}

// RemoveFamilyMember deletes every family member with the given name. A name
// with no match leaves the profile unchanged.
func (s *userService) RemoveFamilyMember(ctx context.Context, cmd RemoveFamilyMemberCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return UserProfile{}, fmt.Errorf("%w: family member name is required", ErrUserInvalidInput)
	}

	profile, err := s.repo.RemoveFamilyMember(ctx, uid, name, s.now())
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return profile, nil
}

// AddAddress saves a collection address to the address book. Saving the same
// address twice keeps a single entry.
func (s *userService) AddAddress(ctx context.Context, cmd AddAddressCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}
	address := strings.TrimSpace(cmd.Address)
	if address == "" {
		return UserProfile{}, fmt.Errorf("%w: address is required", ErrUserInvalidInput)
	}
	if len(address) > maxSavedAddressLength {
		return UserProfile{}, fmt.Errorf("%w: address must be %d characters or fewer", ErrUserInvalidInput, maxSavedAddressLength)
	}

	profile, err := s.repo.AddAddress(ctx, uid, address, s.now())
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	s.logger(ctx, "user.address_saved", map[string]any{"userID": uid})
	return profile, nil
}

// RemoveAddress deletes a saved address. An address not in the book leaves
// the profile unchanged.
func (s *userService) RemoveAddress(ctx context.Context, cmd RemoveAddressCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}
	address := strings.TrimSpace(cmd.Address)
	if address == "" {
		return UserProfile{}, fmt.Errorf("%w: address is required", ErrUserInvalidInput)
	}

	profile, err := s.repo.RemoveAddress(ctx, uid, address, s.now())
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return profile, nil
}

func (s *userService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrUserNotFound
	default:
		return fmt.Errorf("%w: %v", ErrUserStoreError, err)
	}
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func canonicaliseLanguageTag(tag string) (string, error) {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return "", nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
