package adapters

import (
	"context"

	"github.com/shouni/autosage/pkg/domain"
	"google.golang.org/genai"
)

// mockAnalysisCore は AnalysisCore インターフェースのテスト用モックなのだ。
type mockAnalysisCore struct {
	toPartFunc func(payload domain.ImagePayload) *genai.Part
	parseFunc  func(resp *genai.GenerateContentResponse) (string, error)
}

func (m *mockAnalysisCore) ToPart(payload domain.ImagePayload) *genai.Part {
	if m.toPartFunc != nil {
		return m.toPartFunc(payload)
	}
	return genai.NewPartFromBytes(payload.Data, payload.MIMEType)
}

func (m *mockAnalysisCore) ParseText(resp *genai.GenerateContentResponse) (string, error) {
	if m.parseFunc != nil {
		return m.parseFunc(resp)
	}
	return "", nil
}

// mockAIClient は ContentGenerator のテスト用モックなのだ。
type mockAIClient struct {
	calls        int
	generateFunc func(model string, contents []*genai.Content) (*genai.GenerateContentResponse, error)
}

func (m *mockAIClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	if m.generateFunc != nil {
		return m.generateFunc(model, contents)
	}
	return nil, nil
}

// textResponse はテキストだけを含むレスポンスを作るヘルパーなのだ。
func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, &genai.Part{Text: t})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: parts}, FinishReason: genai.FinishReasonStop},
		},
	}
}
