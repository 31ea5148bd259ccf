// Package guard はルート遷移前の許可判定を提供する。
// 判定は（認証状態スナップショット, 対象パス）の純粋関数であり、
// 必ずallowまたはredirectのいずれかに解決する。
package guard

import (
	"strings"

	"github.com/hitoshi/toolvault/internal/authstate"
)

// ルーティングの正準パス。
// 未確認ユーザーのリダイレクト先は過去に揺れていたため、ここで一本化する。
const (
	// PublicLanding は未認証ユーザーの着地ページ。
	PublicLanding = "/home/tool-panel"
	// PrivateLanding は認証済みユーザーの着地ページ。
	PrivateLanding = "/home/tool-panel"
	// LoginPath はログインページ。
	LoginPath = "/auth/log-in"
)

// unverifiedAllowedPaths は未確認ユーザーに許可されるパブリックページ。
// ログイン、確認メール再送、パスワード再設定のみ。
var unverifiedAllowedPaths = map[string]bool{
	LoginPath:               true,
	"/auth/send-email":      true,
	"/auth/forgot-password": true,
}

// Decision はガードの判定結果を表す。AllowとRedirectToは排他。
type Decision struct {
	Allow      bool
	RedirectTo string
}

// allow は許可判定を返す。
func allow() Decision {
	return Decision{Allow: true}
}

// redirect はリダイレクト判定を返す。
func redirect(path string) Decision {
	return Decision{RedirectTo: path}
}

// Private はプライベートルートのガード判定を行う。
// ユーザーが存在しメール確認済みの場合のみ許可する。
// ユーザー不在、または未確認の場合はパブリック着地ページへリダイレクトする。
// stateがnil（サインアウトまたは結合失敗）の場合は安全側に倒して拒否する。
func Private(state *authstate.State, targetPath string) Decision {
	if state == nil || state.User == nil {
		return redirect(PublicLanding)
	}
	if !state.User.EmailVerified {
		return redirect(PublicLanding)
	}
	return allow()
}

// Public はパブリックルートのガード判定を行う。
//   - ユーザー不在: 許可（匿名はパブリックページに到達できる）。
//   - 未確認ユーザー: 未確認ユーザー向けのページ（ログイン、確認メール再送、
//     パスワード再設定）のみ許可し、それ以外はログインページへリダイレクト。
//   - 確認済みユーザー: プライベート着地ページ自体は許可し、
//     認証エントリページやその他のパブリックページからは
//     プライベート着地ページへリダイレクト。
//
// タイブレーク規則: 確認状態 > 存在 > 無条件許可。
// リダイレクト先が自分自身になることはない（着地ページは常に許可される）。
func Public(state *authstate.State, targetPath string) Decision {
	if state == nil || state.User == nil {
		return allow()
	}
	if !state.User.EmailVerified {
		if unverifiedAllowedPaths[normalizePath(targetPath)] {
			return allow()
		}
		return redirect(LoginPath)
	}
	if normalizePath(targetPath) == PrivateLanding {
		return allow()
	}
	return redirect(PrivateLanding)
}

// normalizePath は末尾スラッシュを除去してパスを比較可能にする。
func normalizePath(path string) string {
	if path == "/" {
		return path
	}
	return strings.TrimRight(path, "/")
}
