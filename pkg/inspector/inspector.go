// Package inspector は画像ペイロードを受け取り、リトライ制御の下で車両解析を実行します。
package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/autosage/pkg/adapters"
	"github.com/shouni/autosage/pkg/domain"
	"github.com/shouni/autosage/pkg/retry"
)

// Inspector は Dispatcher と Governor を組み合わせた解析サービスです。
type Inspector struct {
	dispatcher adapters.Dispatcher
	governor   *retry.Governor
}

// New は Inspector を作成します。
func New(dispatcher adapters.Dispatcher, governor *retry.Governor) (*Inspector, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if governor == nil {
		return nil, fmt.Errorf("governor is required")
	}
	return &Inspector{dispatcher: dispatcher, governor: governor}, nil
}

// Inspect は payload を解析します。
// 空のペイロードの場合はディスパッチせずに domain.ErrMissingInput を返します。
// それ以外の失敗は AnalysisResult.Err に格納されます。
func (i *Inspector) Inspect(ctx context.Context, payload domain.ImagePayload) (domain.AnalysisResult, error) {
	if payload.Empty() {
		return domain.AnalysisResult{}, domain.ErrMissingInput
	}

	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID)
	logger.InfoContext(ctx, "車両解析を開始します", "mime_type", payload.MIMEType, "bytes", payload.Size())

	started := time.Now()
	res := i.governor.Do(ctx, func(ctx context.Context) (string, error) {
		return i.dispatcher.Dispatch(ctx, payload)
	})

	if res.Failed() {
		logger.WarnContext(ctx, "車両解析に失敗しました", "attempts", res.Attempts, "elapsed", time.Since(started), "error", res.Err)
	} else {
		logger.InfoContext(ctx, "車両解析が完了しました", "attempts", res.Attempts, "elapsed", time.Since(started), "chars", len(res.Text))
	}
	return res, nil
}
