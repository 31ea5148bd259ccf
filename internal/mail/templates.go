package mail

import "fmt"

// VerificationMail はメールアドレス確認メールの件名と本文を生成する。
func VerificationMail(link string) (subject, body string) {
	subject = "【ToolVault】メールアドレスの確認"
	body = fmt.Sprintf(`<p>ToolVaultにご登録いただきありがとうございます。</p>
<p>以下のリンクをクリックしてメールアドレスを確認してください。</p>
<p><a href="%s">メールアドレスを確認する</a></p>
<p>このメールに心当たりがない場合は破棄してください。</p>`, link)
	return subject, body
}

// PasswordResetMail はパスワード再設定メールの件名と本文を生成する。
func PasswordResetMail(link string) (subject, body string) {
	subject = "【ToolVault】パスワードの再設定"
	body = fmt.Sprintf(`<p>パスワード再設定のリクエストを受け付けました。</p>
<p>以下のリンクから新しいパスワードを設定してください。</p>
<p><a href="%s">パスワードを再設定する</a></p>
<p>このメールに心当たりがない場合は破棄してください。パスワードは変更されません。</p>`, link)
	return subject, body
}

// ChangeEmailMail はメールアドレス変更確認メールの件名と本文を生成する。
// 変更は新しいアドレスでの確認が完了するまで反映されない。
func ChangeEmailMail(link string) (subject, body string) {
	subject = "【ToolVault】メールアドレス変更の確認"
	body = fmt.Sprintf(`<p>メールアドレス変更のリクエストを受け付けました。</p>
<p>以下のリンクをクリックすると変更が確定します。</p>
<p><a href="%s">メールアドレスの変更を確定する</a></p>
<p>このメールに心当たりがない場合は破棄してください。メールアドレスは変更されません。</p>`, link)
	return subject, body
}
