// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// UserInfoResponse describes the authenticated user. The user id field keeps
// its historical name from the EspoCRM days for API compatibility.
type UserInfoResponse struct {
	Name                  string `json:"name"`
	IsAdmin               bool   `json:"is_admin"`
	UserID                string `json:"espo_user_id"`
	RequirePasswordChange bool   `json:"require_password_change"`
}

// UserInfoHandler handles GET /api/v1/user/info requests.
func (h *Handler) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	auth := AuthFromContext(r.Context())

	_, changeRequired, err := h.store.GetPasswordHash(r.Context(), auth.User.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UserInfoResponse{
		Name:                  auth.User.Name,
		IsAdmin:               auth.User.IsAdmin,
		UserID:                auth.User.ID,
		RequirePasswordChange: changeRequired,
	})
}

// UsersResponse lists all registered users.
type UsersResponse struct {
	Users []UserSummary `json:"users"`
}

// UserSummary describes one user in the listing.
type UserSummary struct {
	Name    string `json:"name"`
	UserID  string `json:"espo_user_id"`
	IsAdmin bool   `json:"is_admin"`
	Email   string `json:"email"`
}

// ListUsersHandler handles GET /api/v1/user/list requests.
func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	response := UsersResponse{Users: make([]UserSummary, 0, len(users))}
	for _, user := range users {
		response.Users = append(response.Users, UserSummary{
			Name:    user.Name,
			UserID:  user.ID,
			IsAdmin: user.IsAdmin,
			Email:   user.Email,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// RegisterRequest is the payload for creating a new user.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Locale   string `json:"locale"`
}

// RegisterResponse carries the id of the created user.
type RegisterResponse struct {
	UserID string `json:"user_id"`
}

// RegisterHandler handles POST /api/v1/user/register requests. The first
// registered user becomes an admin.
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if !h.provider.SupportsRegistration() {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	locale, ok := parseLocale(req.Locale)
	if !ok {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	count, err := h.store.CountUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	firstUser := count == 0

	user, err := h.provider.RegisterUser(r.Context(), req.Name, req.Email, req.Password, firstUser, locale)
	if err != nil {
		writeError(w, err)
		return
	}

	if user.EmailVerification != nil {
		h.sendVerificationMail(r, user.Email, user.Name, locale, user.EmailVerification)
	}

	writeJSON(w, http.StatusOK, RegisterResponse{UserID: user.ID})
}

// RegistrationRequiredResponse reports whether a first user still has to be
// created.
type RegistrationRequiredResponse struct {
	RegistrationRequired bool `json:"registration_required"`
}

// RegistrationRequiredHandler handles GET /api/v1/user/registration-required
// requests.
func (h *Handler) RegistrationRequiredHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RegistrationRequiredResponse{RegistrationRequired: count == 0})
}

// ChangePasswordRequest carries the old and new password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePasswordHandler handles POST /api/v1/user/change-password requests.
func (h *Handler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	if !h.provider.SupportsPasswordChange() {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	auth := AuthFromContext(r.Context())

	if _, err := h.provider.ValidateCredentials(r.Context(), auth.User.Email, req.OldPassword, ""); err != nil {
		writeError(w, err)
		return
	}

	if err := h.provider.SetPassword(r.Context(), auth.User.ID, req.NewPassword, false); err != nil {
		writeError(w, err)
		return
	}

	if err := h.mail.SendPasswordChanged(r.Context(), auth.User.Email, auth.User.Name, auth.User.Locale); err != nil {
		logger.Warnw("failed to send password changed mail", "error", err)
	}
	writeEmpty(w)
}

// ChangeEmailRequest carries the new address and the current password.
type ChangeEmailRequest struct {
	NewEmail string `json:"new_email"`
	Password string `json:"password"`
}

// ChangeEmailHandler handles POST /api/v1/user/change-email requests. The new
// address becomes current only after verification.
func (h *Handler) ChangeEmailHandler(w http.ResponseWriter, r *http.Request) {
	if !h.provider.SupportsEmailChange() {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	var req ChangeEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	auth := AuthFromContext(r.Context())

	if _, err := h.provider.ValidateCredentials(r.Context(), auth.User.Email, req.Password, ""); err != nil {
		writeError(w, err)
		return
	}

	verification, err := h.store.UpdateEmail(r.Context(), auth.User.ID, req.NewEmail)
	if err != nil {
		writeError(w, err)
		return
	}

	// The verification mail goes to the current address; the new one is not
	// proven to work yet.
	h.sendVerificationMail(r, auth.User.Email, auth.User.Name, auth.User.Locale, verification)
	writeEmpty(w)
}

// ChangeNameRequest carries the new display name.
type ChangeNameRequest struct {
	NewName string `json:"new_name"`
}

// ChangeNameHandler handles POST /api/v1/user/change-name requests.
func (h *Handler) ChangeNameHandler(w http.ResponseWriter, r *http.Request) {
	if !h.provider.SupportsNameChange() {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	var req ChangeNameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	auth := AuthFromContext(r.Context())
	if err := h.store.SetUserName(r.Context(), auth.User.ID, req.NewName); err != nil {
		writeError(w, err)
		return
	}
	writeEmpty(w)
}

// VerifyEmailHandler handles POST /api/v1/user/verify-email requests. The
// code and user id arrive as query parameters because the verification page
// receives them that way in its own URL.
func (h *Handler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	if !h.provider.SupportsEmailChange() {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	userID := query.Get("user_id")

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	verification, err := h.store.GetEmailVerification(r.Context(), userID, query.Get("code"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.SetEmailVerified(r.Context(), userID, verification.Address, true); err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.DeleteEmailVerification(r.Context(), userID, verification.Address, verification.Code); err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.SetUserEmail(r.Context(), userID, verification.Address); err != nil {
		if errors.Is(err, storage.ErrNoVerifiedEmail) {
			// The address was marked verified just above.
			writeStatus(w, http.StatusInternalServerError)
			return
		}
		writeError(w, err)
		return
	}

	// Notify the previous address of the change.
	if err := h.mail.SendEmailChanged(r.Context(), user.Email, user.Name, user.Locale); err != nil {
		logger.Warnw("failed to send email changed mail", "error", err)
	}
	writeEmpty(w)
}

// PasswordForgottenRequest names the account to reset.
type PasswordForgottenRequest struct {
	Email string `json:"email"`
}

// PasswordForgottenHandler handles POST /api/v1/user/password-forgotten
// requests. The response does not reveal whether the address is known.
func (h *Handler) PasswordForgottenHandler(w http.ResponseWriter, r *http.Request) {
	var req PasswordForgottenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		writeEmpty(w)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.provider.SupportsPasswordChange() {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	temporaryPassword := storage.GenerateString(storage.TempPasswordLength)
	if err := h.provider.SetPassword(r.Context(), user.ID, temporaryPassword, true); err != nil {
		writeError(w, err)
		return
	}

	if err := h.mail.SendPasswordForgotten(r.Context(), user.Email, user.Name, user.Locale, temporaryPassword); err != nil {
		logger.Warnw("failed to send password forgotten mail", "error", err)
	}
	writeEmpty(w)
}

// SupportsPasswordChangeResponse reports a capability of the authorization
// backend.
type SupportsPasswordChangeResponse struct {
	PasswordChangeSupported bool `json:"password_change_supported"`
}

// SupportsPasswordChangeHandler handles
// GET /api/v1/user/supports-password-change requests.
func (h *Handler) SupportsPasswordChangeHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SupportsPasswordChangeResponse{
		PasswordChangeSupported: h.provider.SupportsPasswordChange(),
	})
}

// sendVerificationMail mails the verification link, or logs it when mail
// delivery is disabled so an operator can still complete the flow.
func (h *Handler) sendVerificationMail(r *http.Request, to, name string, locale storage.Locale, verification *storage.UserEmailVerification) {
	link := h.emailVerifyLink(verification)

	if !h.mail.DeliveryEnabled() {
		logger.Infow("email delivery disabled, verify the address manually", "link", link)
		return
	}
	if err := h.mail.SendVerifyEmail(r.Context(), to, name, locale, link); err != nil {
		logger.Warnw("failed to send verification mail", "error", err)
	}
}

func (h *Handler) emailVerifyLink(verification *storage.UserEmailVerification) string {
	values := url.Values{}
	values.Set("code", verification.Code)
	values.Set("user_id", verification.UserID)
	return fmt.Sprintf("%s?%s", h.config.HTTP.UIEmailVerificationPath, values.Encode())
}

func parseLocale(value string) (storage.Locale, bool) {
	switch storage.Locale(value) {
	case storage.LocaleEn, storage.LocaleNl:
		return storage.Locale(value), true
	default:
		return "", false
	}
}
