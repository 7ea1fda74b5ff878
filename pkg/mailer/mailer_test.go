// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilford-oidc/wilford/pkg/storage"
)

func TestRenderTemplates(t *testing.T) {
	t.Parallel()

	m, err := New(nil)
	require.NoError(t, err)

	body, err := m.render("verify_email", storage.LocaleEn, VerifyEmailData{
		Name:            "Alice",
		EmailVerifyLink: "https://id.example.com/verify?code=abc&user_id=u1",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Alice")
	assert.Contains(t, body, "https://id.example.com/verify?code=abc&amp;user_id=u1")

	body, err = m.render("password_forgotten", storage.LocaleNl, PasswordForgottenData{
		Name:              "Alice",
		TemporaryPassword: "t3mpPassw0rd",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "t3mpPassw0rd")
	assert.Contains(t, body, "Beste Alice")

	body, err = m.render("password_changed", storage.LocaleEn, PasswordChangedData{Name: "Alice"})
	require.NoError(t, err)
	assert.Contains(t, body, "password was just changed")

	body, err = m.render("email_changed", storage.LocaleNl, EmailChangedData{Name: "Alice"})
	require.NoError(t, err)
	assert.Contains(t, body, "email adres")
}

func TestLoggingOnlyMailerDoesNotFail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, m.SendVerifyEmail(ctx, "alice@example.com", "Alice", storage.LocaleEn, "https://example.com/verify"))
	require.NoError(t, m.SendPasswordChanged(ctx, "alice@example.com", "Alice", storage.LocaleNl))
	require.NoError(t, m.SendPasswordForgotten(ctx, "alice@example.com", "Alice", storage.LocaleEn, "temp"))
	require.NoError(t, m.SendEmailChanged(ctx, "alice@example.com", "Alice", storage.LocaleNl))
}

func TestLocalizedSubjects(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Email verification", localized(storage.LocaleEn, "Email verification", "Email verificatie"))
	assert.Equal(t, "Email verificatie", localized(storage.LocaleNl, "Email verification", "Email verificatie"))
}
