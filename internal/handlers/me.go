package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/piiderlab/api/internal/platform/auth"
	"github.com/piiderlab/api/internal/platform/httpx"
	"github.com/piiderlab/api/internal/services"
)

const maxProfileBodySize = 64 * 1024

var errNoEditableFields = errors.New("no editable fields provided")

// MeHandlers exposes authenticated profile and session endpoints.
type MeHandlers struct {
	authn    *auth.Authenticator
	users    services.UserService
	carts    services.CartService
	checkout services.CheckoutService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before
// invoking the user service. Cart and checkout services are used for logout
// teardown of per-session state.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService, carts services.CartService, checkout services.CheckoutService) *MeHandlers {
	return &MeHandlers{
		authn:    authn,
		users:    users,
		carts:    carts,
		checkout: checkout,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Patch("/", h.updateProfile)
	r.Post("/session", h.startSession)
	r.Delete("/session", h.endSession)
	r.Post("/family-members", h.addFamilyMember)
	r.Delete("/family-members", h.removeFamilyMember)
	r.Post("/addresses", h.addAddress)
	r.Delete("/addresses", h.removeAddress)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile)})
}

// startSession ensures the users/{uid} document exists before any other
// profile read happens in the session.
func (h *MeHandlers) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cmd := services.EnsureProfileCommand{
		UserID: identity.UID,
		Email:  identity.Email,
		Locale: identity.Locale,
	}
	if record, err := identity.User(ctx); err == nil && record != nil && record.UserInfo != nil {
		cmd.DisplayName = record.UserInfo.DisplayName
	}

	profile, err := h.users.EnsureProfile(ctx, cmd)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile)})
}

// endSession discards the caller's cart and checkout wizard. Profile data is
// durable and untouched.
func (h *MeHandlers) endSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if h.carts != nil {
		h.carts.Drop(identity.UID)
	}
	if h.checkout != nil {
		h.checkout.Drop(identity.UID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	updateReq, err := parseUpdateProfileRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProfileCommand{
		UserID:            identity.UID,
		FullName:          cloneStringPointer(updateReq.fullName),
		Mobile:            cloneStringPointer(updateReq.mobile),
		Address:           cloneStringPointer(updateReq.address),
		Pincode:           cloneStringPointer(updateReq.pincode),
		PreferredLanguage: cloneStringPointer(updateReq.preferredLanguage),
	}

	profile, err := h.users.UpdateProfile(ctx, cmd)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile)})
}

func (h *MeHandlers) addFamilyMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req addFamilyMemberRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	profile, err := h.users.AddFamilyMember(ctx, services.AddFamilyMemberCommand{
		UserID:   identity.UID,
		Name:     req.Name,
		Relation: req.Relation,
		Age:      req.Age,
	})
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, meResponse{Profile: buildProfilePayload(profile)})
}

// removeFamilyMember deletes members by name. The name travels in the JSON
// body rather than the path so names with spaces need no escaping.
func (h *MeHandlers) removeFamilyMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req removeFamilyMemberRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	profile, err := h.users.RemoveFamilyMember(ctx, services.RemoveFamilyMemberCommand{
		UserID: identity.UID,
		Name:   req.Name,
	})
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile)})
}

func (h *MeHandlers) addAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req savedAddressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	profile, err := h.users.AddAddress(ctx, services.AddAddressCommand{
		UserID:  identity.UID,
		Address: req.Address,
	})
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, meResponse{Profile: buildProfilePayload(profile)})
}

func (h *MeHandlers) removeAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req savedAddressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	profile, err := h.users.RemoveAddress(ctx, services.RemoveAddressCommand{
		UserID:  identity.UID,
		Address: req.Address,
	})
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile)})
}

type meResponse struct {
	Profile meProfilePayload `json:"profile"`
}

type meProfilePayload struct {
	ID                string                `json:"id"`
	FullName          string                `json:"fullName"`
	Email             string                `json:"email"`
	Mobile            string                `json:"mobile,omitempty"`
	Address           string                `json:"address,omitempty"`
	Pincode           string                `json:"pincode,omitempty"`
	Addresses         []string              `json:"addresses,omitempty"`
	FamilyMembers     []familyMemberPayload `json:"familyMembers,omitempty"`
	IsAdmin           bool                  `json:"isAdmin"`
	PreferredLanguage string                `json:"preferredLanguage,omitempty"`
	CreatedAt         string                `json:"createdAt,omitempty"`
	UpdatedAt         string                `json:"updatedAt,omitempty"`
}

type familyMemberPayload struct {
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
	Age      int    `json:"age"`
}

type addFamilyMemberRequest struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Age      int    `json:"age"`
}

type removeFamilyMemberRequest struct {
	Name string `json:"name"`
}

type savedAddressRequest struct {
	Address string `json:"address"`
}

type updateProfileRequest struct {
	fullName          *string
	mobile            *string
	address           *string
	pincode           *string
	preferredLanguage *string
}

func parseUpdateProfileRequest(data []byte) (updateProfileRequest, error) {
	var req updateProfileRequest

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return req, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if len(raw) == 0 {
		return req, errNoEditableFields
	}

	stringField := func(value json.RawMessage, name string) (*string, error) {
		if isJSONNull(value) {
			return nil, fmt.Errorf("%s must not be null", name)
		}
		var parsed string
		if err := json.Unmarshal(value, &parsed); err != nil {
			return nil, fmt.Errorf("%s must be a string", name)
		}
		return &parsed, nil
	}

	updateFields := 0
	for key, value := range raw {
		var err error
		switch key {
		case "fullName":
			req.fullName, err = stringField(value, "fullName")
		case "mobile":
			req.mobile, err = stringField(value, "mobile")
		case "address":
			req.address, err = stringField(value, "address")
		case "pincode":
			req.pincode, err = stringField(value, "pincode")
		case "preferredLanguage":
			req.preferredLanguage, err = stringField(value, "preferredLanguage")
		default:
			continue
		}
		if err != nil {
			return updateProfileRequest{}, err
		}
		updateFields++
	}
	if updateFields == 0 {
		return req, errNoEditableFields
	}
	return req, nil
}

func isJSONNull(value json.RawMessage) bool {
	return strings.TrimSpace(string(value)) == "null"
}

func buildProfilePayload(profile services.UserProfile) meProfilePayload {
	payload := meProfilePayload{
		ID:                profile.ID,
		FullName:          profile.FullName,
		Email:             profile.Email,
		Mobile:            profile.Mobile,
		Address:           profile.Address,
		Pincode:           profile.Pincode,
		Addresses:         profile.Addresses,
		IsAdmin:           profile.IsAdmin,
		PreferredLanguage: profile.PreferredLanguage,
		CreatedAt:         formatTime(profile.CreatedAt),
		UpdatedAt:         formatTime(profile.UpdatedAt),
	}
	for _, member := range profile.FamilyMembers {
		payload.FamilyMembers = append(payload.FamilyMembers, familyMemberPayload{
			Name:     member.Name,
			Relation: member.Relation,
			Age:      member.Age,
		})
	}
	return payload
}

func writeUserProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_profile_field", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserStoreError):
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile store is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "failed to process profile request", http.StatusInternalServerError))
	}
}
