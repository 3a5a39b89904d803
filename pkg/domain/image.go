package domain

import "strings"

// ImagePayload はアップロードされた1枚の画像です。リクエスト完了後に破棄されます。
type ImagePayload struct {
	MIMEType string
	Data     []byte
}

// NewImagePayload は MIME タイプとバイト列から ImagePayload を作成します。
// 呼び出し元のスライスを後から書き換えられても影響しないようにコピーを保持します。
func NewImagePayload(mimeType string, data []byte) ImagePayload {
	buf := make([]byte, len(data))
	copy(buf, data)
	return ImagePayload{
		MIMEType: strings.TrimSpace(mimeType),
		Data:     buf,
	}
}

// Empty はバイト列が空かどうかを返します。
func (p ImagePayload) Empty() bool {
	return len(p.Data) == 0
}

// Size はバイト数です。
func (p ImagePayload) Size() int {
	return len(p.Data)
}
