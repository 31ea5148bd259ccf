// Package authstate はプロセス内の認証状態ストアを提供する。
// 現在の認証状態を保持し、購読者へ同期的に配信する。
// 新規購読者には購読時点の状態が即座にリプレイされる。
package authstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/toolvault/internal/model"
)

// State は配信される認証状態のスナップショットを表す。
// nilのStateはサインアウト状態を意味する。
type State struct {
	User    *model.User
	Profile *model.Profile
}

// ProfileLookup はプロファイルミラーからの取得関数。
type ProfileLookup func(ctx context.Context, uid string) (*model.Profile, error)

// Listener は状態変化の通知を受け取るコールバック。
type Listener func(state *State)

// Store は認証状態の保持と購読管理を行う。
// 全メソッドはスレッドセーフ。通知は購読順に同期的に行われる。
type Store struct {
	mu          sync.Mutex
	current     *State
	seq         uint64
	subscribers []*subscriber
	nextID      int
	lookup      ProfileLookup
}

type subscriber struct {
	id int
	fn Listener
	// syncing はリプレイ完了前を表す。trueの間はSetからの通知対象外で、
	// 状態変化はリプレイループが最新状態で拾い直す。
	syncing bool
}

// NewStore はStoreを生成する。lookupはプロファイル結合に使用される（nil可）。
func NewStore(lookup ProfileLookup) *Store {
	return &Store{lookup: lookup}
}

// Current は現在の状態を返す。
func (s *Store) Current() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe は購読を開始する。購読時点の状態が即座にfnへリプレイされる。
// 返される関数を呼ぶと購読が解除され、以後の通知は配信されない。
// 解除関数は複数回呼んでも安全。
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	sub := &subscriber{id: s.nextID, fn: fn, syncing: true}
	s.subscribers = append(s.subscribers, sub)
	s.mu.Unlock()

	// リプレイはロック外で行う。fn内からの再購読を許容するため。
	// リプレイ中にSetが割り込んだ場合（seqが進んだ場合）は最新状態で
	// リプレイし直し、購読者が古い状態を最後に見た状態にしない。
	for {
		s.mu.Lock()
		state := s.current
		seq := s.seq
		s.mu.Unlock()

		fn(state)

		s.mu.Lock()
		if s.seq == seq {
			sub.syncing = false
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, candidate := range s.subscribers {
				if candidate.id == sub.id {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Set は状態を更新し、全購読者へ購読順に通知する。
// リプレイ中の購読者は通知対象外で、リプレイ側が最新状態を配信する。
func (s *Store) Set(state *State) {
	s.mu.Lock()
	s.current = state
	s.seq++
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if !sub.syncing {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}

// Clear はサインアウト状態に遷移する。
func (s *Store) Clear() {
	s.Set(nil)
}

// SetUser はユーザーをプロファイルミラーと結合して状態を更新する。
// 結合に失敗した場合は安全側に倒してサインアウト状態として扱う。
// userがnilの場合はClearと同じ。
func (s *Store) SetUser(ctx context.Context, user *model.User) {
	if user == nil {
		s.Clear()
		return
	}

	state := &State{User: user}
	if s.lookup != nil {
		profile, err := s.lookup(ctx, user.UID)
		if err != nil {
			slog.Warn("auth state enrichment failed, treating as signed out",
				slog.String("uid", user.UID),
				slog.String("error", err.Error()),
			)
			s.Clear()
			return
		}
		state.Profile = profile
	}
	s.Set(state)
}

// SubscriberCount は現在の購読者数を返す。
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
