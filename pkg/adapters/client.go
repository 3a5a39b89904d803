package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrAPIKeyMissing は API キーが設定されていないことを表します。
var ErrAPIKeyMissing = errors.New("GOOGLE_API_KEY is not set")

// NewGenAIGenerator は API キーで Gemini API クライアントを生成し、その Models を返します。
// クライアントは起動時に一度だけ作り、以降のリクエストで使い回します。
func NewGenAIGenerator(ctx context.Context, apiKey string) (ContentGenerator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}
	return client.Models, nil
}

// Unavailable は常に err を返す ContentGenerator です。
// API キーが無い状態でも画面を表示し続けるために使います。
func Unavailable(err error) ContentGenerator {
	return unavailableGenerator{err: err}
}

type unavailableGenerator struct {
	err error
}

func (u unavailableGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, fmt.Errorf("Gemini API is unavailable: %w", u.err)
}

// IsRateLimited はエラーがレート制限 (HTTP 429 / RESOURCE_EXHAUSTED) によるものかを判定します。
// genai.APIError の場合はコードとステータスで判定し、それ以外は文字列に "429" を含むかで判定します。
func IsRateLimited(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return isRateLimitedAPIError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return isRateLimitedAPIError(*apiErrPtr)
	}

	return strings.Contains(err.Error(), "429")
}

func isRateLimitedAPIError(e genai.APIError) bool {
	return e.Code == 429 || strings.EqualFold(e.Status, "RESOURCE_EXHAUSTED")
}
