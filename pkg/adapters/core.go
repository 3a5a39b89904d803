package adapters

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shouni/autosage/pkg/domain"
	"github.com/shouni/autosage/pkg/imgutil"
	"google.golang.org/genai"
)

// AnalysisCore はリクエストのパーツ組み立てとレスポンス解析を抽象化するインターフェースです。
type AnalysisCore interface {
	ToPart(payload domain.ImagePayload) *genai.Part
	ParseText(resp *genai.GenerateContentResponse) (string, error)
}

// GeminiAnalysisCore は画像パーツの変換と Gemini のテキスト応答の解析を担当します。
type GeminiAnalysisCore struct {
	compress bool
	quality  int
}

// CoreOption は GeminiAnalysisCore の設定を変更します。
type CoreOption func(*GeminiAnalysisCore)

// WithJPEGCompression は送信前に画像を指定品質の JPEG へ再圧縮します。
func WithJPEGCompression(quality int) CoreOption {
	return func(c *GeminiAnalysisCore) {
		c.compress = true
		c.quality = quality
	}
}

// NewGeminiAnalysisCore は GeminiAnalysisCore のインスタンスを生成します。
func NewGeminiAnalysisCore(opts ...CoreOption) *GeminiAnalysisCore {
	c := &GeminiAnalysisCore{quality: imgutil.DefaultQuality}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToPart はペイロードを genai.Part (InlineData) に変換します。
// 画像ではないデータの場合は nil を返します。
func (c *GeminiAnalysisCore) ToPart(payload domain.ImagePayload) *genai.Part {
	if payload.Empty() {
		return nil
	}

	data := payload.Data
	mimeType := payload.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		slog.Warn("MIMEタイプが画像ではないためPartに変換できませんでした", "mime_type", mimeType)
		return nil
	}

	if c.compress {
		// 圧縮に失敗した場合は元のデータのまま送る
		if compressed, err := imgutil.CompressToJPEG(data, c.quality); err == nil {
			data = compressed
			mimeType = "image/jpeg"
		} else {
			slog.Warn("JPEG圧縮に失敗したため元の画像を送信します", "error", err)
		}
	}

	return genai.NewPartFromBytes(data, mimeType)
}

// ParseText は Gemini のレスポンスから最初の候補のテキストを取り出します。
// テキストの中身は検証しません。
func (c *GeminiAnalysisCore) ParseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("Geminiからの有効な応答がありませんでした")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("リクエストがブロックされました (BlockReason: %s)", resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("Geminiからの有効な応答がありませんでした")
	}

	// 最初の候補 (Candidate) のみを利用する
	candidate := resp.Candidates[0]

	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() > 0 {
		return sb.String(), nil
	}

	// 安全フィルター等によるブロックの確認
	switch candidate.FinishReason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop:
		return "", fmt.Errorf("テキストデータが見つかりませんでした")
	default:
		return "", fmt.Errorf("解析が異常終了しました (FinishReason: %s)", candidate.FinishReason)
	}
}
