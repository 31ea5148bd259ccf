// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/toolvault/internal/authstate"
	"github.com/hitoshi/toolvault/internal/guard"
	"github.com/hitoshi/toolvault/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// authStateContextKey はリクエストコンテキストに認証状態スナップショットを
// 格納するためのキー。
var authStateContextKey = contextKey("auth_state")

// UserLoader はセッションIDから現在のユーザーを取得する。
// auth.ServiceのGetCurrentUserの部分集合として定義する。
type UserLoader interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// NewAuthSnapshot はHTTP Only Cookieからセッションを読み取り、
// プロファイルミラーと結合した認証状態スナップショットをリクエスト
// コンテキストに注入するミドルウェアを返す。
// 未認証でも拒否はせず、nilスナップショットのまま次へ進む。
// 許可判定はガード側が行う。結合に失敗した場合もnilスナップショットとして
// 扱う（ガードのフェイル動作に委ねる）。
func NewAuthSnapshot(loader UserLoader, lookup authstate.ProfileLookup) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var state *authstate.State

			cookie, err := r.Cookie(SessionCookieName)
			if err == nil && cookie.Value != "" {
				user, err := loader.GetCurrentUser(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to load current user",
						slog.String("error", err.Error()),
					)
				} else if user != nil {
					state = &authstate.State{User: user}
					if lookup != nil {
						profile, err := lookup(r.Context(), user.UID)
						if err != nil {
							slog.Warn("auth snapshot enrichment failed",
								slog.String("uid", user.UID),
								slog.String("error", err.Error()),
							)
							state = nil
						} else {
							state.Profile = profile
						}
					}
				}
			}

			ctx := ContextWithAuthState(r.Context(), state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireVerified はプライベートルートのガードを適用するミドルウェアを返す。
// ガードが許可しないリクエストには401 Unauthorizedを返す。
// ナビゲーション層向けのリダイレクト先は/api/guards/decideが提供する。
func NewRequireVerified() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := AuthStateFromContext(r.Context())
			decision := guard.Private(state, r.URL.Path)
			if !decision.Allow {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireAdmin は管理者ロールを要求するミドルウェアを返す。
// ロールフラグはプロファイルミラー由来の検証済みの値を使用する。
// NewRequireVerifiedの後に配置すること。
func NewRequireAdmin() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := AuthStateFromContext(r.Context())
			if state == nil || state.Profile == nil || !state.Profile.Roles.Admin {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthStateFromContext はリクエストコンテキストから認証状態スナップショットを
// 取得する。スナップショットミドルウェアを通過していない場合はnilを返す。
func AuthStateFromContext(ctx context.Context) *authstate.State {
	state, _ := ctx.Value(authStateContextKey).(*authstate.State)
	return state
}

// ContextWithAuthState はコンテキストに認証状態スナップショットを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAuthState(ctx context.Context, state *authstate.State) context.Context {
	return context.WithValue(ctx, authStateContextKey, state)
}

// UIDFromContext はリクエストコンテキストから認証済みユーザーのUIDを取得する。
// 認証されていない場合はエラーを返す。
func UIDFromContext(ctx context.Context) (string, error) {
	state := AuthStateFromContext(ctx)
	if state == nil || state.User == nil {
		return "", fmt.Errorf("no authenticated user in context")
	}
	return state.User.UID, nil
}
