// Package storage はツールのロゴ・画像アセットの保存機能を提供する。
// ローカルディスク上にキー（logos/<filename>, images/tools/<filename>）で
// オブジェクトを保存し、公開URLへの解決を行う。
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ProgressFunc はアップロードの進捗通知を受け取るコールバック。
// writtenは書き込み済みバイト数、totalは全体サイズ（不明な場合は-1）。
type ProgressFunc func(written, total int64)

// BlobStore はアセットの保存・削除・存在確認のインターフェースを定義する。
type BlobStore interface {
	// Save はreaderの内容をkeyで保存し、公開URLを返す。
	// 書き込み中はprogressに進捗を通知する（progressはnil可）。
	// 途中で失敗した場合は書きかけのファイルを残さない。
	Save(ctx context.Context, key string, r io.Reader, total int64, progress ProgressFunc) (string, error)

	// Delete は指定キーのアセットを削除する。存在しないキーはエラーになる。
	Delete(ctx context.Context, key string) error

	// Exists は指定キーのアセットが存在するかを返す。
	Exists(ctx context.Context, key string) (bool, error)

	// URL はキーを公開URLに解決する。
	URL(key string) string
}

// DiskStore はローカルディスクを使用したBlobStoreの実装。
type DiskStore struct {
	rootDir string
	baseURL string
}

// NewDiskStore はDiskStoreを生成する。rootDirは存在しなければ作成される。
func NewDiskStore(rootDir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &DiskStore{
		rootDir: rootDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// validateKey はキーがストレージルート外を指さないことを検証する。
func (s *DiskStore) validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty asset key")
	}
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") || cleaned == ".." {
		return fmt.Errorf("invalid asset key: %s", key)
	}
	return nil
}

// Save はreaderの内容をkeyで保存し、公開URLを返す。
// 一時ファイルに書き込んでからリネームするため、失敗時に書きかけの
// ファイルが公開されることはない。
func (s *DiskStore) Save(ctx context.Context, key string, r io.Reader, total int64, progress ProgressFunc) (string, error) {
	if err := s.validateKey(key); err != nil {
		return "", err
	}

	dst := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create asset dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var written int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return "", fmt.Errorf("upload canceled: %w", err)
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				tmp.Close()
				return "", fmt.Errorf("failed to write asset: %w", writeErr)
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			return "", fmt.Errorf("failed to read upload: %w", readErr)
		}
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("failed to finalize asset: %w", err)
	}

	return s.URL(key), nil
}

// Delete は指定キーのアセットを削除する。
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	if err := s.validateKey(key); err != nil {
		return err
	}
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", key, err)
	}
	return nil
}

// Exists は指定キーのアセットが存在するかを返す。
func (s *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.validateKey(key); err != nil {
		return false, err
	}
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat asset %s: %w", key, err)
}

// URL はキーを公開URLに解決する。
func (s *DiskStore) URL(key string) string {
	return s.baseURL + "/" + filepath.ToSlash(key)
}

// Root はストレージのルートディレクトリを返す。静的配信用。
func (s *DiskStore) Root() string {
	return s.rootDir
}

// compile-time interface check
var _ BlobStore = (*DiskStore)(nil)
