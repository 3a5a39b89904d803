package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shouni/autosage/pkg/adapters"
	"github.com/shouni/autosage/pkg/config"
	"github.com/shouni/autosage/pkg/inspector"
	"github.com/shouni/autosage/pkg/retry"
	"github.com/shouni/autosage/pkg/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("AutoSage を終了します", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := buildHandler(ctx, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("AutoSage を起動しました", "addr", cfg.Addr, "model", cfg.Model)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("シャットダウンします")
	return srv.Shutdown(shutdownCtx)
}

// buildHandler はクライアントを一度だけ生成し、各コンポーネントに明示的に渡します。
func buildHandler(ctx context.Context, cfg *config.Config) (http.Handler, error) {
	apiKeyMissing := !cfg.HasAPIKey()

	var generator adapters.ContentGenerator
	if apiKeyMissing {
		slog.Error("API キーが見つかりません。.env ファイルを確認してください", "env", "GOOGLE_API_KEY")
		generator = adapters.Unavailable(adapters.ErrAPIKeyMissing)
	} else {
		g, err := adapters.NewGenAIGenerator(ctx, cfg.APIKey)
		if err != nil {
			slog.Error("Geminiクライアントを生成できませんでした", "error", err)
			generator = adapters.Unavailable(err)
		} else {
			generator = g
		}
	}

	var coreOpts []adapters.CoreOption
	if cfg.CompressImages {
		coreOpts = append(coreOpts, adapters.WithJPEGCompression(cfg.CompressionQuality))
	}

	analyzer, err := adapters.NewGeminiVehicleAnalyzer(adapters.NewGeminiAnalysisCore(coreOpts...), generator, cfg.Model)
	if err != nil {
		return nil, err
	}

	governor := retry.New(
		retry.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay},
		retry.WithClassifier(adapters.IsRateLimited),
	)

	ins, err := inspector.New(analyzer, governor)
	if err != nil {
		return nil, err
	}

	srv, err := web.NewServer(ins, web.Options{
		Model:          analyzer.Model(),
		APIKeyMissing:  apiKeyMissing,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PreviewMaxDim:  cfg.PreviewMaxDim,
	})
	if err != nil {
		return nil, err
	}
	return srv.Handler(), nil
}

func setupLogger(cfg *config.Config) {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
