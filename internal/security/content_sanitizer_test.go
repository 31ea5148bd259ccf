package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags は許可タグが正しく通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		// want に含まれるべき部分文字列
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>高速なコードエディタ</p>",
			wantContains: []string{"<p>高速なコードエディタ</p>"},
		},
		{
			name:         "brタグが許可される",
			input:        "行1<br>行2",
			wantContains: []string{"<br>", "行1", "行2"},
		},
		{
			name:         "aタグが許可される",
			input:        `<a href="https://example.com/docs">ドキュメント</a>`,
			wantContains: []string{"<a", "href", "https://example.com/docs", "ドキュメント", "</a>"},
		},
		{
			name:         "ulタグとliタグが許可される",
			input:        "<ul><li>機能1</li><li>機能2</li></ul>",
			wantContains: []string{"<ul>", "<li>", "機能1", "機能2", "</li>", "</ul>"},
		},
		{
			name:         "preタグとcodeタグが許可される",
			input:        "<pre><code>npm install</code></pre>",
			wantContains: []string{"<pre>", "<code>", "npm install", "</code>", "</pre>"},
		},
		{
			name:         "strongタグとemタグが許可される",
			input:        "<strong>無料</strong>で<em>すぐに</em>使える",
			wantContains: []string{"<strong>無料</strong>", "<em>すぐに</em>"},
		},
		{
			name:         "imgタグがhttps srcで許可される",
			input:        `<img src="https://example.com/screenshot.png" alt="スクリーンショット">`,
			wantContains: []string{"<img", "src", "https://example.com/screenshot.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_ForbiddenTags は禁止タグが除去されることを検証する。
func TestSanitize_ForbiddenTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantAbsent   []string
		wantContains []string
	}{
		{
			name:         "scriptタグが除去される",
			input:        `<p>説明</p><script>alert('xss')</script><p>安全</p>`,
			wantAbsent:   []string{"<script", "</script>", "alert"},
			wantContains: []string{"<p>説明</p>", "<p>安全</p>"},
		},
		{
			name:       "iframeタグが除去される",
			input:      `<p>説明</p><iframe src="https://evil.example.com"></iframe>`,
			wantAbsent: []string{"<iframe", "evil.example.com"},
		},
		{
			name:       "styleタグが除去される",
			input:      `<style>body { display: none }</style><p>説明</p>`,
			wantAbsent: []string{"<style", "display: none"},
		},
		{
			name:         "onclickイベント属性が除去される",
			input:        `<p onclick="alert(1)">説明</p>`,
			wantAbsent:   []string{"onclick", "alert"},
			wantContains: []string{"<p>説明</p>"},
		},
		{
			name:       "httpスキームのimg srcが除去される",
			input:      `<img src="http://example.com/image.png">`,
			wantAbsent: []string{"http://example.com/image.png"},
		},
		{
			name:       "javascriptスキームのimg srcが除去される",
			input:      `<img src="javascript:alert(1)">`,
			wantAbsent: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, expected NOT to contain %q", tt.input, got, absent)
				}
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_LinkAttributes はaタグにtarget/rel属性が付与されることを検証する。
func TestSanitize_LinkAttributes(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`<a href="https://example.com">リンク</a>`)
	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("expected target=\"_blank\" in %q", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("expected rel noopener noreferrer in %q", got)
	}
}

// TestSanitize_EmptyInput は空文字列入力に空文字列を返すことを検証する。
func TestSanitize_EmptyInput(t *testing.T) {
	sanitizer := NewContentSanitizer()
	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want \"\"", got)
	}
}

// TestSanitize_Idempotent は同一入力に対して冪等であることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()
	input := `<p>説明</p><script>alert(1)</script><strong>太字</strong>`

	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize is not idempotent: first %q, second %q", once, twice)
	}
}
