package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/password"
)

var allowedAvatarTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Account manages the profile of an authenticated user.
type Account struct {
	users   model.UserStore
	tokens  *TokenService
	hasher  *password.Hasher
	storage model.Storage
	tx      model.Transactor
	logger  *logger.Logger
}

// NewAccount creates Account. storage may be nil when avatars are disabled.
func NewAccount(
	users model.UserStore,
	tokens *TokenService,
	hasher *password.Hasher,
	storage model.Storage,
	tx model.Transactor,
	logger *logger.Logger,
) *Account {
	return &Account{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		storage: storage,
		tx:      tx,
		logger:  logger,
	}
}

// Profile returns the user identified by userUUID.
func (a *Account) Profile(ctx context.Context, userUUID uuid.UUID) (model.User, error) {
	return a.getUser(ctx, userUUID)
}

// UpdateProfile changes the display name.
func (a *Account) UpdateProfile(ctx context.Context, userUUID uuid.UUID, displayName string) (model.User, error) {
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return model.User{}, model.NewBadRequest(fmt.Sprintf("display name must be at most %d characters", maxDisplayNameLength))
	}

	user, err := a.getUser(ctx, userUUID)
	if err != nil {
		return model.User{}, err
	}

	updated, err := a.users.Update(ctx, user.ID, model.UserUpdate{DisplayName: &displayName})
	if err != nil {
		a.logger.Error("Account: failed to update profile",
			"user_id", user.ID,
			"error", err.Error())
		return model.User{}, model.NewServerError(err)
	}

	return updated, nil
}

// ChangePassword replaces the password after checking the current one and
// logs the user out of every device.
func (a *Account) ChangePassword(ctx context.Context, userUUID uuid.UUID, current, next string) error {
	user, err := a.getUser(ctx, userUUID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return model.NewBadRequest("account has no password, use password reset to set one")
	}

	ok, err := a.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		a.logger.Error("Account: stored password hash is unreadable",
			"user_id", user.ID,
			"error", err.Error())
		return model.NewServerError(err)
	}
	if !ok {
		a.logger.Security("Account: wrong current password on change",
			"user_id", user.ID)
		return model.NewForbidden("current password is incorrect")
	}

	hash, err := a.hasher.Hash(next)
	if errors.Is(err, password.ErrTooShort) {
		return model.NewBadRequest(fmt.Sprintf("password must be at least %d characters", a.hasher.MinLength()))
	}
	if err != nil {
		a.logger.Error("Account: failed to hash password",
			"user_id", user.ID,
			"error", err.Error())
		return model.NewServerError(err)
	}

	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := a.users.Update(ctx, user.ID, model.UserUpdate{PasswordHash: &hash}); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return a.tokens.RevokeAll(ctx, user.ID)
	})
	if err != nil {
		a.logger.Error("Account: failed to change password",
			"user_id", user.ID,
			"error", err.Error())
		return wrapServerError(err)
	}

	a.logger.Info("Account: password changed",
		"user_id", user.ID)

	return nil
}

// PutAvatar stores the avatar image of the user.
func (a *Account) PutAvatar(ctx context.Context, userUUID uuid.UUID, r io.Reader, size int64, contentType string) error {
	if a.storage == nil {
		return model.NewNotFound("avatar storage is not enabled")
	}
	if !allowedAvatarTypes[contentType] {
		return model.NewBadRequest("avatar must be a png, jpeg, gif or webp image")
	}
	if size <= 0 {
		return model.NewBadRequest("avatar is empty")
	}

	user, err := a.getUser(ctx, userUUID)
	if err != nil {
		return err
	}

	key := avatarKey(user.UUID)
	if err := a.storage.Upload(ctx, key, r, size, contentType); err != nil {
		a.logger.Error("Account: failed to upload avatar",
			"user_id", user.ID,
			"key", key,
			"error", err.Error())
		return model.NewServerError(err)
	}

	if user.AvatarKey == key {
		return nil
	}
	if _, err := a.users.Update(ctx, user.ID, model.UserUpdate{AvatarKey: &key}); err != nil {
		a.logger.Error("Account: failed to save avatar key",
			"user_id", user.ID,
			"error", err.Error())
		return model.NewServerError(err)
	}

	return nil
}

// Avatar opens the avatar of the user. The caller closes the reader.
func (a *Account) Avatar(ctx context.Context, userUUID uuid.UUID) (io.ReadCloser, error) {
	if a.storage == nil {
		return nil, model.NewNotFound("avatar storage is not enabled")
	}

	user, err := a.getUser(ctx, userUUID)
	if err != nil {
		return nil, err
	}
	if user.AvatarKey == "" {
		return nil, model.NewNotFound("user has no avatar")
	}

	rc, err := a.storage.Download(ctx, user.AvatarKey)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NewNotFound("user has no avatar")
	}
	if err != nil {
		a.logger.Error("Account: failed to download avatar",
			"user_id", user.ID,
			"key", user.AvatarKey,
			"error", err.Error())
		return nil, model.NewServerError(err)
	}

	return rc, nil
}

// Delete removes the account with its tokens and sessions. The avatar is
// removed on a best-effort basis.
func (a *Account) Delete(ctx context.Context, userUUID uuid.UUID) error {
	user, err := a.getUser(ctx, userUUID)
	if err != nil {
		return err
	}

	err = a.users.Delete(ctx, user.ID)
	if errors.Is(err, model.ErrNotFound) {
		return model.NewNotFound("user not found")
	}
	if err != nil {
		a.logger.Error("Account: failed to delete user",
			"user_id", user.ID,
			"email", user.Email,
			"error", err.Error())
		return model.NewServerError(err)
	}

	if a.storage != nil && user.AvatarKey != "" {
		if err := a.storage.Delete(ctx, user.AvatarKey); err != nil {
			a.logger.Warn("Account: failed to remove avatar of deleted user",
				"user_id", user.ID,
				"key", user.AvatarKey,
				"error", err.Error())
		}
	}

	a.logger.Info("Account: user deleted",
		"user_id", user.ID,
		"email", user.Email)

	return nil
}

// Deactivate disables the target account and revokes its credentials.
// Only administrators may call it.
func (a *Account) Deactivate(ctx context.Context, actorUUID, targetUUID uuid.UUID) error {
	actor, err := a.getUser(ctx, actorUUID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		a.logger.Security("Account: deactivation attempted by non-admin",
			"user_id", actor.ID,
			"target", targetUUID.String())
		return model.NewForbidden("administrator role required")
	}
	if actor.UUID == targetUUID {
		return model.NewBadRequest("administrators cannot deactivate themselves")
	}

	target, err := a.getUser(ctx, targetUUID)
	if err != nil {
		return err
	}

	inactive := false
	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := a.users.Update(ctx, target.ID, model.UserUpdate{Active: &inactive}); err != nil {
			return fmt.Errorf("failed to deactivate user: %w", err)
		}
		return a.tokens.RevokeAll(ctx, target.ID)
	})
	if err != nil {
		a.logger.Error("Account: failed to deactivate user",
			"user_id", target.ID,
			"error", err.Error())
		return wrapServerError(err)
	}

	a.logger.Info("Account: user deactivated",
		"user_id", target.ID,
		"by", actor.ID)

	return nil
}

func (a *Account) getUser(ctx context.Context, userUUID uuid.UUID) (model.User, error) {
	user, err := a.users.GetByUUID(ctx, userUUID)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, model.NewNotFound("user not found")
	}
	if err != nil {
		a.logger.Error("Account: failed to get user",
			"uuid", userUUID.String(),
			"error", err.Error())
		return model.User{}, model.NewServerError(err)
	}
	return user, nil
}

func avatarKey(id uuid.UUID) string {
	return "avatars/" + id.String()
}
