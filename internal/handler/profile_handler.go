package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/toolvault/internal/model"
)

// ProfileServiceInterface はプロファイルハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// GetProfile はドキュメントストア上のプロファイルを返す。未登録の場合はnilを返す。
	GetProfile(ctx context.Context, uid string) (*model.Profile, error)
	// UpdateProfile は表示名・メールアドレスを更新する。
	// メールアドレスの変更はverify-before-updateで遅延適用され、
	// 現在のパスワードによる再認証を要求する。
	UpdateProfile(ctx context.Context, uid, displayName, newEmail, currentPassword string) error
	// Reauthenticate は現在のパスワードで再認証する。
	Reauthenticate(ctx context.Context, uid, password string) error
}

// ProfileHandler はユーザープロファイルのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileResponse はプロファイル情報のAPIレスポンス。
type profileResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Initial     string `json:"initial"`
	AuthMethod  string `json:"auth_method"`
	Admin       bool   `json:"admin"`
	Client      bool   `json:"client"`
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		UID:         p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Initial:     p.Initial(),
		AuthMethod:  string(p.AuthMethod),
		Admin:       p.Roles.Admin,
		Client:      p.Roles.Client,
	}
}

// GetProfile は現在のユーザーのプロファイルを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(profile))
}

// updateProfileRequest はプロファイル更新リクエストのボディ。
// CurrentPasswordはメールアドレス変更時のみ必須。
type updateProfileRequest struct {
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
}

// UpdateProfile は表示名とメールアドレスを更新する。
// メールアドレスの変更は現在のパスワードによる再認証を要求したうえで、
// 新アドレス宛の確認メールで遅延適用される。
// PATCH /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if err := h.service.UpdateProfile(r.Context(), uid, req.DisplayName, req.Email, req.CurrentPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// reauthenticateRequest は再認証リクエストのボディ。
type reauthenticateRequest struct {
	Password string `json:"password"`
}

// Reauthenticate は現在のパスワードで再認証する。
// メールアドレス変更などの重要操作の前に要求される。
// POST /api/profile/reauthenticate
func (h *ProfileHandler) Reauthenticate(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}

	var req reauthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if err := h.service.Reauthenticate(r.Context(), uid, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
