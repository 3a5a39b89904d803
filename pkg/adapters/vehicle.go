package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/autosage/pkg/domain"
	"google.golang.org/genai"
)

// DefaultModel は既定で利用するモデル名です。
const DefaultModel = "gemini-2.5-flash"

// ContentGenerator は Gemini の生成 API を抽象化するインターフェースです。
// *genai.Models がこれを満たします。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Dispatcher はプロンプトと画像を1回だけ送信してテキストを受け取ります。
type Dispatcher interface {
	Dispatch(ctx context.Context, payload domain.ImagePayload) (string, error)
}

// GeminiVehicleAnalyzer は車両画像の解析リクエストを組み立てて Gemini に送るアダプターです。
type GeminiVehicleAnalyzer struct {
	core     AnalysisCore     // パーツ変換とレスポンス解析
	aiClient ContentGenerator // 通信クライアント
	model    string           // 使用するモデル名
	prompt   string
}

// NewGeminiVehicleAnalyzer は依存関係を注入して初期化します。
func NewGeminiVehicleAnalyzer(core AnalysisCore, aiClient ContentGenerator, model string) (*GeminiVehicleAnalyzer, error) {
	if core == nil {
		return nil, fmt.Errorf("core (AnalysisCore) is required")
	}
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient (ContentGenerator) is required")
	}
	if model == "" {
		model = DefaultModel
	}

	return &GeminiVehicleAnalyzer{
		core:     core,
		aiClient: aiClient,
		model:    model,
		prompt:   VehiclePrompt,
	}, nil
}

// Model は使用するモデル名を返します。
func (a *GeminiVehicleAnalyzer) Model() string {
	return a.model
}

// Dispatch はプロンプトと画像を Gemini に1回だけ送信し、応答テキストを返します。
// 通信や API のエラーは分類せずにそのまま返します。
func (a *GeminiVehicleAnalyzer) Dispatch(ctx context.Context, payload domain.ImagePayload) (string, error) {
	if payload.Empty() {
		return "", domain.ErrMissingInput
	}

	imgPart := a.core.ToPart(payload)
	if imgPart == nil {
		return "", fmt.Errorf("unsupported image payload (mime type %q)", payload.MIMEType)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(a.prompt),
			imgPart,
		}, genai.RoleUser),
	}

	slog.DebugContext(ctx, "Geminiに解析をリクエストします", "model", a.model, "mime_type", payload.MIMEType, "bytes", payload.Size())
	resp, err := a.aiClient.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", err
	}

	return a.core.ParseText(resp)
}
