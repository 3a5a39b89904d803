package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shouni/autosage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock は実際には眠らず、要求された待機時間を記録するのだ。
type fakeClock struct {
	waits []time.Duration
	err   error
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	return c.err
}

func (c *fakeClock) Total() time.Duration {
	var total time.Duration
	for _, w := range c.waits {
		total += w
	}
	return total
}

// scriptedOp は呼ばれるたびに errs の先頭から順にエラーを返し、尽きたら成功するのだ。
type scriptedOp struct {
	errs  []error
	text  string
	calls int
}

func (s *scriptedOp) Run(ctx context.Context) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return s.text, nil
}

var errRateLimited = errors.New("googleapi: Error 429: Resource has been exhausted")

func TestGovernor_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("初回成功なら待機せずに返す", func(t *testing.T) {
		clock := &fakeClock{}
		op := &scriptedOp{text: "Royal Enfield Classic 350"}
		g := New(DefaultPolicy(), WithSleep(clock.Sleep))

		res := g.Do(ctx, op.Run)

		require.False(t, res.Failed())
		assert.Equal(t, "Royal Enfield Classic 350", res.Output())
		assert.Equal(t, 1, op.calls)
		assert.Empty(t, clock.waits)
	})

	t.Run("レート制限2回の後に成功すると合計30単位待機する", func(t *testing.T) {
		clock := &fakeClock{}
		op := &scriptedOp{errs: []error{errRateLimited, errRateLimited}, text: "report"}
		unit := time.Millisecond
		g := New(Policy{MaxAttempts: 3, BaseDelay: 10 * unit}, WithSleep(clock.Sleep))

		res := g.Do(ctx, op.Run)

		require.False(t, res.Failed())
		assert.Equal(t, "report", res.Text)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, []time.Duration{10 * unit, 20 * unit}, clock.waits)
		assert.Equal(t, 30*unit, clock.Total())
		assert.Len(t, res.Notices, 2)
	})

	t.Run("既定ポリシーでは10秒と20秒待つ", func(t *testing.T) {
		clock := &fakeClock{}
		op := &scriptedOp{errs: []error{errRateLimited, errRateLimited}, text: "ok"}
		g := New(DefaultPolicy(), WithSleep(clock.Sleep))

		res := g.Do(ctx, op.Run)

		require.False(t, res.Failed())
		assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, clock.waits)
		assert.Equal(t, 30*time.Second, clock.Total())
	})

	t.Run("レート制限以外の失敗は即座に打ち切る", func(t *testing.T) {
		clock := &fakeClock{}
		op := &scriptedOp{errs: []error{errors.New("invalid argument: image too large")}}
		g := New(DefaultPolicy(), WithSleep(clock.Sleep))

		res := g.Do(ctx, op.Run)

		require.True(t, res.Failed())
		assert.Equal(t, 1, op.calls)
		assert.Empty(t, clock.waits)
		assert.Contains(t, res.Output(), "invalid argument: image too large")
		assert.True(t, strings.HasPrefix(res.Output(), domain.ErrorMarker))
	})

	t.Run("レート制限が3回続くと3回で止まり429を含むエラーを返す", func(t *testing.T) {
		clock := &fakeClock{}
		op := &scriptedOp{errs: []error{errRateLimited, errRateLimited, errRateLimited, errRateLimited}}
		g := New(DefaultPolicy(), WithSleep(clock.Sleep))

		res := g.Do(ctx, op.Run)

		require.True(t, res.Failed())
		assert.Equal(t, 3, op.calls)
		assert.Equal(t, 3, res.Attempts)
		assert.Len(t, clock.waits, 2)
		assert.Contains(t, res.Output(), "429")

		var failure *domain.RequestFailure
		require.ErrorAs(t, res.Err, &failure)
		assert.Equal(t, 3, failure.Attempts)
		assert.ErrorIs(t, res.Err, errRateLimited)
	})

	t.Run("待機中にキャンセルされたら再送しない", func(t *testing.T) {
		clock := &fakeClock{err: context.Canceled}
		op := &scriptedOp{errs: []error{errRateLimited}, text: "never"}
		g := New(DefaultPolicy(), WithSleep(clock.Sleep))

		res := g.Do(ctx, op.Run)

		require.True(t, res.Failed())
		assert.Equal(t, 1, op.calls)
		assert.Contains(t, res.Output(), "429")
		assert.Contains(t, res.Output(), "retry aborted")
	})

	t.Run("Classifier を差し替えられる", func(t *testing.T) {
		clock := &fakeClock{}
		transient := errors.New("quota exhausted")
		op := &scriptedOp{errs: []error{transient}, text: "ok"}
		g := New(DefaultPolicy(),
			WithSleep(clock.Sleep),
			WithClassifier(func(err error) bool { return errors.Is(err, transient) }),
		)

		res := g.Do(ctx, op.Run)

		require.False(t, res.Failed())
		assert.Equal(t, 2, op.calls)
	})

	t.Run("再送フックに待機時間が渡される", func(t *testing.T) {
		clock := &fakeClock{}
		var got []domain.RetryNotice
		op := &scriptedOp{errs: []error{errRateLimited}, text: "ok"}
		g := New(DefaultPolicy(),
			WithSleep(clock.Sleep),
			WithRetryHook(func(ctx context.Context, n domain.RetryNotice) { got = append(got, n) }),
		)

		g.Do(ctx, op.Run)

		require.Len(t, got, 1)
		assert.Equal(t, domain.RetryNotice{Attempt: 1, Wait: 10 * time.Second}, got[0])
	})
}

func TestNew_NormalizesPolicy(t *testing.T) {
	g := New(Policy{MaxAttempts: 0, BaseDelay: -time.Second})

	assert.Equal(t, 1, g.Policy().MaxAttempts)
	assert.Equal(t, time.Duration(0), g.Policy().BaseDelay)
}

func TestSleepContext(t *testing.T) {
	t.Run("キャンセル済みなら即座にエラー", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := SleepContext(ctx, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("短い待機は正常に終わる", func(t *testing.T) {
		err := SleepContext(context.Background(), time.Millisecond)
		assert.NoError(t, err)
	})
}

func TestContainsStatus429(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429を含む", errors.New("HTTP 429 Too Many Requests"), true},
		{"その他", errors.New("500 internal"), false},
		{"キャンセル", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsStatus429(tt.err))
		})
	}
}
