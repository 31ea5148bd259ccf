// Package panel はツールパネルの検索・フィルタパイプラインを提供する。
package panel

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizer はダイアクリティカルマーク除去＋小文字化の変換器。
// NFD分解後に結合文字（Mn）を取り除く。
var normalizer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize は検索照合用に文字列を正規化する。
// ダイアクリティカルマークを除去し小文字化する（"Café" → "cafe"）。
// 変換に失敗した場合は小文字化のみ行った値を返す。
func Normalize(s string) string {
	folded, _, err := transform.String(normalizer, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

// matches は正規化済みの検索語がフィールドに含まれるかを判定する。
func matches(normalizedTerm, field string) bool {
	return strings.Contains(Normalize(field), normalizedTerm)
}
