// Package retry は単一のディスパッチを包み、レート制限時だけ線形に待機して再送するリトライ制御です。
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/autosage/pkg/domain"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 10 * time.Second
)

// Operation は1回のディスパッチです。
type Operation func(ctx context.Context) (string, error)

// Classifier はエラーがレート制限によるものかを判定します。
type Classifier func(err error) bool

// SleepFunc は待機処理です。ctx がキャンセルされた場合はエラーを返します。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy は試行回数と待機時間の設定です。n 回目の失敗後の待機は n × BaseDelay になります。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy は最大3回、10秒刻みの線形待機です。
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Delay は attempt 回目 (1始まり) の失敗後に待つ時間です。
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

// Governor は Operation を最大 MaxAttempts 回まで逐次実行します。
type Governor struct {
	policy   Policy
	sleep    SleepFunc
	classify Classifier
	onRetry  func(ctx context.Context, n domain.RetryNotice)
}

// Option は Governor の設定を変更します。
type Option func(*Governor)

// WithSleep は待機処理を差し替えます。テストで時間を進めずに検証するために使います。
func WithSleep(fn SleepFunc) Option {
	return func(g *Governor) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

// WithClassifier はレート制限判定を差し替えます。
func WithClassifier(fn Classifier) Option {
	return func(g *Governor) {
		if fn != nil {
			g.classify = fn
		}
	}
}

// WithRetryHook は再送が決まるたびに呼ばれるフックを登録します。
func WithRetryHook(fn func(ctx context.Context, n domain.RetryNotice)) Option {
	return func(g *Governor) {
		g.onRetry = fn
	}
}

// New は Governor を作成します。MaxAttempts が1未満の場合は1回だけ試行します。
func New(policy Policy, opts ...Option) *Governor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay < 0 {
		policy.BaseDelay = 0
	}
	g := &Governor{
		policy:   policy,
		sleep:    SleepContext,
		classify: ContainsStatus429,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy は現在の設定を返します。
func (g *Governor) Policy() Policy {
	return g.policy
}

// Do は op を実行し、結果を AnalysisResult として返します。
// 失敗はすべて結果の Err に RequestFailure として格納され、panic やエラー戻り値にはなりません。
func (g *Governor) Do(ctx context.Context, op Operation) domain.AnalysisResult {
	var notices []domain.RetryNotice

	for attempt := 1; ; attempt++ {
		text, err := op(ctx)
		if err == nil {
			return domain.AnalysisResult{Text: text, Attempts: attempt, Notices: notices}
		}

		if !g.classify(err) || attempt >= g.policy.MaxAttempts {
			slog.ErrorContext(ctx, "ディスパッチに失敗しました", "attempt", attempt, "rate_limited", g.classify(err), "error", err)
			return g.failure(err, attempt, notices)
		}

		notice := domain.RetryNotice{Attempt: attempt, Wait: g.policy.Delay(attempt)}
		notices = append(notices, notice)
		slog.WarnContext(ctx, "レート制限を検知したため待機後に再送します", "attempt", attempt, "wait", notice.Wait, "error", err)
		if g.onRetry != nil {
			g.onRetry(ctx, notice)
		}

		if sleepErr := g.sleep(ctx, notice.Wait); sleepErr != nil {
			return g.failure(fmt.Errorf("%w (retry aborted: %v)", err, sleepErr), attempt, notices)
		}
	}
}

func (g *Governor) failure(err error, attempt int, notices []domain.RetryNotice) domain.AnalysisResult {
	return domain.AnalysisResult{
		Err:      &domain.RequestFailure{Attempts: attempt, Err: err},
		Attempts: attempt,
		Notices:  notices,
	}
}

// SleepContext は d だけ待機します。ctx が先に終了した場合はその理由を返します。
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ContainsStatus429 はエラー文字列に "429" が含まれるかで判定する既定の Classifier です。
// 構造化されたエラー種別を返すトランスポートでは、そちらの判定を WithClassifier で渡してください。
func ContainsStatus429(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return strings.Contains(err.Error(), "429")
}
