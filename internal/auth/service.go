// Package auth はメール＋パスワード認証、Google OAuth認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	mailer "github.com/hitoshi/toolvault/internal/mail"
	"github.com/hitoshi/toolvault/internal/model"
	"github.com/hitoshi/toolvault/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	PhotoURL       string
	Provider       string // 現在は "google" のみ
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int           // セッション有効期間（秒）
	VerifyTokenTTL time.Duration // メール確認トークンの有効期間
	ResetTokenTTL  time.Duration // パスワード再設定トークンの有効期間
	BaseURL        string        // 確認リンクのベースURL
}

// SignInResult はサインイン結果を表す。
// メール未確認のユーザーにもセッションは発行され、EmailVerifiedで区別される。
type SignInResult struct {
	User    *model.User
	Session *model.Session
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	profileRepo repository.ProfileRepository
	sessionRepo repository.SessionRepository
	tokenRepo   repository.TokenRepository
	sender      mailer.Sender
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	profileRepo repository.ProfileRepository,
	sessionRepo repository.SessionRepository,
	tokenRepo repository.TokenRepository,
	sender mailer.Sender,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		sender:      sender,
		config:      config,
	}
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

// SignUp はメール＋パスワードでユーザーを登録する。
// アイデンティティ作成後にプロファイルミラーを別呼び出しで書き込む（非アトミック）。
// ミラー書き込みに失敗してもアイデンティティはロールバックされず、
// PROFILE_SYNC_FAILEDが返る。成功時は確認メールを送信しセッションを発行する。
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*SignInResult, error) {
	// ネットワーク・DB呼び出しの前にフォーム検証を行う
	var invalid []string
	if !validateEmail(email) {
		invalid = append(invalid, "email")
	}
	if len(password) < minPasswordLength {
		invalid = append(invalid, "password")
	}
	if displayName == "" {
		invalid = append(invalid, "displayName")
	}
	if len(invalid) > 0 {
		return nil, model.NewValidationError(invalid...)
	}

	inUse, err := s.emailInUse(ctx, email)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, model.NewEmailInUseError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		UID:           uuid.New().String(),
		Email:         email,
		PasswordHash:  string(hash),
		DisplayName:   displayName,
		EmailVerified: false,
		AuthMethod:    model.AuthMethodEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// プロファイルミラー書き込み。失敗してもユーザー作成は取り消さない。
	if err := s.mirrorProfile(ctx, user); err != nil {
		slog.Error("profile mirror write failed after sign-up",
			slog.String("uid", user.UID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProfileSyncFailedError()
	}

	// 確認メール送信の失敗は登録を妨げない。再送が可能なためログのみ。
	if err := s.SendVerification(ctx, user.UID); err != nil {
		slog.Warn("failed to send verification mail",
			slog.String("uid", user.UID),
			slog.String("error", err.Error()),
		)
	}

	session, err := s.createSession(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed up",
		slog.String("uid", user.UID),
		slog.String("auth_method", string(user.AuthMethod)),
	)

	return &SignInResult{User: user, Session: session}, nil
}

// SignIn はメール＋パスワードでサインインしセッションを発行する。
// 認証情報の不一致はINVALID_CREDENTIALSを返す。
// メール未確認のユーザーにもセッションは発行され、呼び出し側が
// User.EmailVerifiedを見てEMAIL_NOT_VERIFIEDとして扱う。
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	var invalid []string
	if !validateEmail(email) {
		invalid = append(invalid, "email")
	}
	if password == "" {
		invalid = append(invalid, "password")
	}
	if len(invalid) > 0 {
		return nil, model.NewValidationError(invalid...)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	// ユーザー不在とパスワード不一致は同一のエラーにする
	if user == nil || user.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in",
		slog.String("uid", user.UID),
		slog.Bool("email_verified", user.EmailVerified),
	)

	return &SignInResult{User: user, Session: session}, nil
}

// GetLoginURL はGoogle OAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleGoogleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成し、
// プロファイルミラーを書き込む。Googleアカウントはメール確認済みとして扱う。
func (s *Service) HandleGoogleCallback(ctx context.Context, code string) (*SignInResult, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User

	if identity != nil {
		user, err = s.userRepo.FindByUID(ctx, identity.UID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, model.NewUserNotFoundError()
		}
		slog.Info("existing user logged in via oauth",
			slog.String("uid", user.UID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		now := time.Now()
		user = &model.User{
			UID:           uuid.New().String(),
			Email:         userInfo.Email,
			DisplayName:   userInfo.Name,
			PhotoURL:      userInfo.PhotoURL,
			EmailVerified: true,
			AuthMethod:    model.AuthMethodGoogle,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UID:            user.UID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, user, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		if err := s.mirrorProfile(ctx, user); err != nil {
			slog.Error("profile mirror write failed after oauth sign-up",
				slog.String("uid", user.UID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewProfileSyncFailedError()
		}

		slog.Info("new user created via oauth",
			slog.String("uid", user.UID),
			slog.String("provider", userInfo.Provider),
		)
	}

	session, err := s.createSession(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SignInResult{User: user, Session: session}, nil
}

// SendVerification はメールアドレス確認メールを送信する。
func (s *Service) SendVerification(ctx context.Context, uid string) error {
	user, err := s.userRepo.FindByUID(ctx, uid)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.EmailVerified {
		return nil
	}

	token, err := s.createToken(ctx, uid, model.TokenKindVerifyEmail, "", s.config.VerifyTokenTTL)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", s.config.BaseURL, token.ID)
	subject, body := mailer.VerificationMail(link)
	if err := s.sender.Send(user.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send verification mail: %w", err)
	}
	return nil
}

// VerifyEmail は確認トークンを消費してメールアドレスを確認済みにする。
func (s *Service) VerifyEmail(ctx context.Context, tokenID string) error {
	token, err := s.tokenRepo.Consume(ctx, tokenID, model.TokenKindVerifyEmail)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if token == nil {
		return model.NewInvalidTokenError()
	}

	user, err := s.userRepo.FindByUID(ctx, token.UID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	user.EmailVerified = true
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	slog.Info("email verified", slog.String("uid", user.UID))
	return nil
}

// ForgotPassword はパスワード再設定メールを送信する。
// 登録されていないメールアドレスでも成功として扱い、登録有無を漏らさない。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if !validateEmail(email) {
		return model.NewValidationError("email")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.AuthMethod != model.AuthMethodEmail {
		slog.Info("password reset requested for unknown or oauth-only address")
		return nil
	}

	token, err := s.createToken(ctx, user.UID, model.TokenKindResetPassword, "", s.config.ResetTokenTTL)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/reset-password?token=%s", s.config.BaseURL, token.ID)
	subject, body := mailer.PasswordResetMail(link)
	if err := s.sender.Send(user.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send reset mail: %w", err)
	}
	return nil
}

// ResetPassword は再設定トークンを消費してパスワードを変更する。
// 変更後は既存の全セッションを破棄する。
func (s *Service) ResetPassword(ctx context.Context, tokenID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return model.NewValidationError("password")
	}

	token, err := s.tokenRepo.Consume(ctx, tokenID, model.TokenKindResetPassword)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if token == nil {
		return model.NewInvalidTokenError()
	}

	user, err := s.userRepo.FindByUID(ctx, token.UID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := s.sessionRepo.DeleteByUID(ctx, user.UID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	slog.Info("password reset", slog.String("uid", user.UID))
	return nil
}

// Reauthenticate は現在のパスワードによる再認証を行う。
// メールアドレス変更などの機微な操作の前に要求される。
func (s *Service) Reauthenticate(ctx context.Context, uid, password string) error {
	user, err := s.userRepo.FindByUID(ctx, uid)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.PasswordHash == "" {
		return model.NewReauthRequiredError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.NewInvalidCredentialsError()
	}
	return nil
}

// UpdateProfile は表示名を更新し、メールアドレス変更をリクエストする。
// 表示名はアイデンティティ側を更新した後にプロファイルミラーへ別呼び出しで
// 反映する。ミラー側が失敗してもアイデンティティ側はロールバックされず、
// PROFILE_SYNC_FAILEDが返る。
// メールアドレス変更はverify-before-update方式で、新アドレス宛の確認メールの
// リンクが開かれるまで反映されない。変更には現在のパスワードによる再認証が
// 必須で、currentPasswordが空または不一致の場合は変更を開始しない。
func (s *Service) UpdateProfile(ctx context.Context, uid, displayName, newEmail, currentPassword string) error {
	user, err := s.userRepo.FindByUID(ctx, uid)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if displayName == "" {
		return model.NewValidationError("displayName")
	}

	changingEmail := newEmail != "" && newEmail != user.Email
	if changingEmail {
		if currentPassword == "" {
			return model.NewReauthRequiredError()
		}
		if err := s.Reauthenticate(ctx, uid, currentPassword); err != nil {
			return err
		}
		if !validateEmail(newEmail) {
			return model.NewValidationError("email")
		}
		inUse, err := s.emailInUse(ctx, newEmail)
		if err != nil {
			return err
		}
		if inUse {
			return model.NewEmailInUseError()
		}
		user.PendingEmail = newEmail
	}

	user.DisplayName = displayName
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := s.profileRepo.UpdateFields(ctx, uid, user.Email, displayName); err != nil {
		slog.Error("profile mirror sync failed after identity update",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
		return model.NewProfileSyncFailedError()
	}

	if changingEmail {
		token, err := s.createToken(ctx, uid, model.TokenKindChangeEmail, newEmail, s.config.VerifyTokenTTL)
		if err != nil {
			return err
		}
		link := fmt.Sprintf("%s/auth/change-email?token=%s", s.config.BaseURL, token.ID)
		subject, body := mailer.ChangeEmailMail(link)
		// 確認メールは新アドレス宛に送信する
		if err := s.sender.Send(newEmail, subject, body); err != nil {
			return fmt.Errorf("failed to send change-email mail: %w", err)
		}
	}

	return nil
}

// ConfirmEmailChange は変更確認トークンを消費してメールアドレスを変更する。
// トークンのPayloadに保持された新アドレスが適用され、ミラーにも反映される。
func (s *Service) ConfirmEmailChange(ctx context.Context, tokenID string) error {
	token, err := s.tokenRepo.Consume(ctx, tokenID, model.TokenKindChangeEmail)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if token == nil {
		return model.NewInvalidTokenError()
	}

	user, err := s.userRepo.FindByUID(ctx, token.UID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	user.Email = token.Payload
	user.PendingEmail = ""
	user.EmailVerified = true
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := s.profileRepo.UpdateFields(ctx, user.UID, user.Email, user.DisplayName); err != nil {
		slog.Error("profile mirror sync failed after email change",
			slog.String("uid", user.UID),
			slog.String("error", err.Error()),
		)
		return model.NewProfileSyncFailedError()
	}

	slog.Info("email changed", slog.String("uid", user.UID))
	return nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効・期限切れの場合はnilを返す（エラーにはしない）。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByUID(ctx, session.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// GetProfile はプロファイルミラーから現在のプロファイルを取得する。
func (s *Service) GetProfile(ctx context.Context, uid string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewUserNotFoundError()
	}
	return profile, nil
}

// emailInUse はメールアドレスが使用中かをアイデンティティとプロファイル
// ミラーの両方で確認する。ミラーは非アトミック書き込みのため、確認の
// 最中に移行途中のアドレスが残っていることがある。
func (s *Service) emailInUse(ctx context.Context, email string) (bool, error) {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return true, nil
	}

	mirrored, err := s.profileRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to check mirrored email: %w", err)
	}
	return mirrored, nil
}

// mirrorProfile はユーザーからプロファイルミラーを書き込む。
// 新規行はclientロールで作成され、既存行のロールフラグはUpsertで保持される。
func (s *Service) mirrorProfile(ctx context.Context, user *model.User) error {
	profile := &model.Profile{
		UID:         user.UID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AuthMethod:  user.AuthMethod,
		Roles:       model.Roles{Client: true},
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
	return s.profileRepo.Upsert(ctx, profile)
}

// createToken はワンショットトークンを作成し永続化する。
func (s *Service) createToken(ctx context.Context, uid string, kind model.TokenKind, payload string, ttl time.Duration) (*model.Token, error) {
	tokenID, err := generateSecureID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token ID: %w", err)
	}
	token := &model.Token{
		ID:        tokenID,
		UID:       uid,
		Kind:      kind,
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return token, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, uid string) (*model.Session, error) {
	sessionID, err := generateSecureID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UID:       uid,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSecureID は暗号的に安全なIDを生成する。
func generateSecureID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
