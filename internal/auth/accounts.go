package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"xitem.org/internal/apperr"
	"xitem.org/internal/audit"
	"xitem.org/internal/mail"
	"xitem.org/internal/obs"
)

// BirthdayLayout is the wire format of birthdays.
const BirthdayLayout = "2006-01-02"

// Accounts implements the user account lifecycle.
type Accounts struct {
	store  Store
	tokens *Tokens
	mailer mail.Dispatcher
}

// NewAccounts constructs the account service.
func NewAccounts(store Store, tokens *Tokens, mailer mail.Dispatcher) *Accounts {
	return &Accounts{store: store, tokens: tokens, mailer: mailer}
}

// Session is the bearer token pair returned by Login.
type Session struct {
	UserID       string
	AuthToken    string
	RefreshToken string
}

// Registration is the input of SendVerification.
type Registration struct {
	Name     string
	Email    string
	Birthday *time.Time
}

// UserPatch lists optional profile changes.
type UserPatch struct {
	Name     *string
	Birthday *time.Time
}

// Login checks credentials and issues an authentication and refresh token.
func (a *Accounts) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, apperr.MissingArgument
	}
	user, err := a.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, apperr.AuthFailed
		}
		return Session{}, apperr.Wrap(apperr.Internal, err)
	}
	if !user.Active {
		return Session{}, apperr.LoginBanned
	}
	if !PasswordMatches(user.PasswordHash, password) {
		return Session{}, apperr.AuthFailed
	}
	authToken, err := a.tokens.IssueSubject(KindAuth, user.ID)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, err)
	}
	refreshToken, err := a.tokens.IssueSubject(KindRefresh, user.ID)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, err)
	}
	a.audit(ctx, "user.login", map[string]any{"user_id": user.ID})
	return Session{UserID: user.ID, AuthToken: authToken, RefreshToken: refreshToken}, nil
}

// SendVerification mails an email-verification key for a new account.
func (a *Accounts) SendVerification(ctx context.Context, reg Registration) error {
	name, err := ValidateName(reg.Name)
	if err != nil {
		return err
	}
	email, err := NormalizeEmail(reg.Email)
	if err != nil {
		return err
	}
	if err := a.emailUnused(ctx, email); err != nil {
		return err
	}
	claims := Claims{Email: email, Name: name}
	if reg.Birthday != nil {
		claims.Birthday = reg.Birthday.UTC().Format(BirthdayLayout)
	}
	key, err := a.tokens.Issue(KindEmail, claims, 0)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	a.send(ctx, mail.Message{To: email, Name: name, Subject: "Welcome", Template: mail.TemplateWelcome, Key: key})
	obs.Info("verification mail requested", map[string]any{"email": email})
	return nil
}

// Verify redeems an email-verification key and creates the account with
// role verified. It returns the new user id.
func (a *Accounts) Verify(ctx context.Context, key, password, repeat string) (string, error) {
	if key == "" {
		return "", apperr.MissingArgument
	}
	if err := ValidateNewPassword(password, repeat); err != nil {
		return "", err
	}
	claims, err := a.actionClaims(KindEmail, key)
	if err != nil {
		return "", err
	}
	if claims.Email == "" || claims.Name == "" {
		return "", apperr.InvalidToken
	}
	if err := a.emailUnused(ctx, claims.Email); err != nil {
		return "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err)
	}
	now := a.tokens.Now().UTC()
	user := &User{
		ID:                uuid.NewString(),
		Name:              claims.Name,
		Email:             claims.Email,
		PasswordHash:      hash,
		Active:            true,
		PasswordChangedAt: now,
		Role:              RoleVerified,
		RegisteredAt:      now,
	}
	if claims.Birthday != "" {
		if b, err := time.Parse(BirthdayLayout, claims.Birthday); err == nil {
			user.Birthday = &b
		}
	}
	if err := a.store.Users(ctx).Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return "", apperr.EmailExists
		}
		return "", apperr.Wrap(apperr.Internal, err)
	}
	a.audit(ctx, "user.registered", map[string]any{"user_id": user.ID})
	return user.ID, nil
}

// ChangePassword replaces the caller's password. Every token issued before
// the change stops resolving.
func (a *Accounts) ChangePassword(ctx context.Context, caller Identity, oldPassword, newPassword, repeat string) error {
	if oldPassword == "" {
		return apperr.MissingArgument
	}
	if err := ValidateNewPassword(newPassword, repeat); err != nil {
		return err
	}
	user, err := a.findUser(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if !PasswordMatches(user.PasswordHash, oldPassword) {
		return apperr.WrongPassword
	}
	return a.setPassword(ctx, user, newPassword)
}

// RequestPasswordRecovery mails a recovery key when the address belongs to
// an account. Unknown addresses succeed silently.
func (a *Accounts) RequestPasswordRecovery(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return apperr.InvalidEmail
	}
	user, err := a.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.Info("password recovery for unknown email", map[string]any{"email": email})
			return nil
		}
		return apperr.Wrap(apperr.Internal, err)
	}
	key, err := a.tokens.IssueSubject(KindRecovery, user.ID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	a.send(ctx, mail.Message{To: user.Email, Name: user.Name, Subject: "Password recovery", Template: mail.TemplatePasswordRecovery, Key: key})
	return nil
}

// ResetPassword redeems a recovery key.
func (a *Accounts) ResetPassword(ctx context.Context, key, newPassword, repeat string) error {
	if key == "" {
		return apperr.MissingArgument
	}
	if err := ValidateNewPassword(newPassword, repeat); err != nil {
		return err
	}
	user, err := a.redeemSubjectKey(ctx, KindRecovery, key)
	if err != nil {
		return err
	}
	return a.setPassword(ctx, user, newPassword)
}

// RequestAccountDeletion mails a deletion key to the caller.
func (a *Accounts) RequestAccountDeletion(ctx context.Context, caller Identity, userID string) error {
	if userID != caller.UserID {
		return apperr.InsufficientPermissions
	}
	user, err := a.findUser(ctx, userID)
	if err != nil {
		return err
	}
	key, err := a.tokens.IssueSubject(KindDeletion, user.ID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	a.send(ctx, mail.Message{To: user.Email, Name: user.Name, Subject: "Account deletion", Template: mail.TemplateDeletionRequest, Key: key})
	return nil
}

// ConfirmAccountDeletion redeems a deletion key. The account password must
// match as a second factor.
func (a *Accounts) ConfirmAccountDeletion(ctx context.Context, key, password string) error {
	if key == "" || password == "" {
		return apperr.MissingArgument
	}
	user, err := a.redeemSubjectKey(ctx, KindDeletion, key)
	if err != nil {
		return err
	}
	if !PasswordMatches(user.PasswordHash, password) {
		return apperr.AuthFailed
	}
	if err := a.deleteUser(ctx, user.ID); err != nil {
		return err
	}
	a.audit(ctx, "user.deleted", map[string]any{"user_id": user.ID, "by": "self"})
	return nil
}

// GetUser returns the stored user.
func (a *Accounts) GetUser(ctx context.Context, id string) (*User, error) {
	return a.findUser(ctx, id)
}

// PatchUser applies profile changes to the caller's own record and returns
// the number of fields that changed.
func (a *Accounts) PatchUser(ctx context.Context, caller Identity, id string, patch UserPatch) (int, error) {
	if id != caller.UserID {
		return 0, apperr.InsufficientPermissions
	}
	user, err := a.findUser(ctx, id)
	if err != nil {
		return 0, err
	}
	changes := 0
	if patch.Name != nil {
		name, err := ValidateName(*patch.Name)
		if err != nil {
			return 0, err
		}
		if name != user.Name {
			user.Name = name
			changes++
		}
	}
	if patch.Birthday != nil {
		b := patch.Birthday.UTC().Truncate(24 * time.Hour)
		if user.Birthday == nil || !user.Birthday.Equal(b) {
			user.Birthday = &b
			changes++
		}
	}
	if changes == 0 {
		return 0, nil
	}
	if err := a.store.Users(ctx).Update(ctx, user); err != nil {
		return 0, a.storeErr(err)
	}
	return changes, nil
}

// DeleteUser removes any account. Callers gate it on the sysadmin role.
func (a *Accounts) DeleteUser(ctx context.Context, admin Identity, id string) error {
	if err := a.deleteUser(ctx, id); err != nil {
		return err
	}
	a.audit(ctx, "user.deleted", map[string]any{"user_id": id, "by": admin.UserID})
	return nil
}

// SetActive bans or unbans an account.
func (a *Accounts) SetActive(ctx context.Context, id string, active bool) error {
	user, err := a.findUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Active == active {
		return nil
	}
	user.Active = active
	if err := a.store.Users(ctx).Update(ctx, user); err != nil {
		return a.storeErr(err)
	}
	a.audit(ctx, "user.active_changed", map[string]any{"user_id": id, "active": active})
	return nil
}

// actionClaims verifies an action key. Expiry is reported as ExpiredToken,
// everything else as InvalidToken.
func (a *Accounts) actionClaims(kind Kind, key string) (*Claims, error) {
	claims, err := a.tokens.Verify(kind, key)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperr.ExpiredToken
		}
		return nil, apperr.InvalidToken
	}
	return claims, nil
}

// redeemSubjectKey verifies a subject-bearing action key and applies the
// same subject rules as bearer tokens.
func (a *Accounts) redeemSubjectKey(ctx context.Context, kind Kind, key string) (*User, error) {
	claims, err := a.actionClaims(kind, key)
	if err != nil {
		return nil, err
	}
	return NewResolver(a.tokens, a.store).checkSubject(ctx, claims)
}

func (a *Accounts) setPassword(ctx context.Context, user *User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = a.tokens.Now().UTC()
	if err := a.store.Users(ctx).Update(ctx, user); err != nil {
		return a.storeErr(err)
	}
	a.audit(ctx, "user.password_changed", map[string]any{"user_id": user.ID})
	return nil
}

func (a *Accounts) emailUnused(ctx context.Context, email string) error {
	_, err := a.store.Users(ctx).FindByEmail(ctx, email)
	switch {
	case err == nil:
		return apperr.EmailExists
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return apperr.Wrap(apperr.Internal, err)
	}
}

func (a *Accounts) findUser(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.UserNotFound
	}
	user, err := a.store.Users(ctx).Find(ctx, id)
	if err != nil {
		return nil, a.storeErr(err)
	}
	return user, nil
}

func (a *Accounts) deleteUser(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.UserNotFound
	}
	if err := a.store.Users(ctx).Delete(ctx, id); err != nil {
		return a.storeErr(err)
	}
	return nil
}

func (a *Accounts) storeErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.UserNotFound
	}
	return apperr.Wrap(apperr.Internal, err)
}

func (a *Accounts) send(ctx context.Context, msg mail.Message) {
	if a.mailer == nil {
		return
	}
	if err := a.mailer.Send(ctx, msg); err != nil {
		obs.Error("mail send failed", map[string]any{"template": msg.Template, "error": err})
	}
}

func (a *Accounts) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Warn("audit log failed", map[string]any{"event": event, "error": err})
	}
}
