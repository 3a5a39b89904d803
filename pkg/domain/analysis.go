package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorMarker は失敗時の出力文字列の先頭に付く印です。
const ErrorMarker = "❌ Error:"

// ErrMissingInput は画像がアップロードされていない状態で解析を要求された場合のエラーです。
// ディスパッチ前に返され、リトライ対象にはなりません。
var ErrMissingInput = errors.New("no image uploaded")

// RequestFailure はディスパッチが最終的に失敗したことを表します。
// レート制限のリトライを使い切った場合も、即時に打ち切った場合もこの型になります。
type RequestFailure struct {
	Attempts int
	Err      error
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("%s %v", ErrorMarker, e.Err)
}

func (e *RequestFailure) Unwrap() error {
	return e.Err
}

// RetryNotice は待機後に再送することを利用者へ知らせるための情報です。
type RetryNotice struct {
	Attempt int
	Wait    time.Duration
}

// Message は画面に表示する警告文です。
func (n RetryNotice) Message() string {
	return fmt.Sprintf("⚠️ Free Tier busy. Retrying in %ds...", int(n.Wait.Round(time.Second)/time.Second))
}

// AnalysisResult は1回の解析要求の結果です。Err が nil なら Text が成功値です。
type AnalysisResult struct {
	Text     string
	Err      error
	Attempts int
	Notices  []RetryNotice
}

// Failed は失敗値かどうかを返します。
func (r AnalysisResult) Failed() bool {
	return r.Err != nil
}

// Output は成功時はモデルのテキストを、失敗時はエラーマーカー付きの文字列を返します。
func (r AnalysisResult) Output() string {
	if r.Err == nil {
		return r.Text
	}
	var failure *RequestFailure
	if errors.As(r.Err, &failure) {
		return failure.Error()
	}
	return fmt.Sprintf("%s %v", ErrorMarker, r.Err)
}
