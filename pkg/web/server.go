// Package web は AutoSage の単一ページ UI を提供する HTTP ハンドラーです。
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shouni/autosage/pkg/domain"
	"github.com/shouni/autosage/pkg/imgutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/page.html
var templateFS embed.FS

const (
	formField          = "image"
	multipartMemory    = 8 << 20
	msgMissingImage    = "Please upload an image first!"
	msgUnsupportedType = "Unsupported file type. Please upload a JPG or PNG image."
	msgTooLarge        = "The uploaded image is too large."
)

// allowedExts はアップロードを受け付ける拡張子です。
var allowedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Analyzer は画像ペイロードを解析するサービスです。
type Analyzer interface {
	Inspect(ctx context.Context, payload domain.ImagePayload) (domain.AnalysisResult, error)
}

// Options は画面表示とアップロード制限の設定です。
type Options struct {
	Model          string
	APIKeyMissing  bool
	MaxUploadBytes int64
	PreviewMaxDim  int
}

// Server は UI の HTTP ハンドラーです。
type Server struct {
	analyzer Analyzer
	opts     Options
	tmpl     *template.Template
	md       goldmark.Markdown
}

type pageData struct {
	Model         string
	APIKeyMissing bool
	Warnings      []string
	PreviewURI    template.URL
	Submitted     bool
	Report        template.HTML
}

// NewServer は Server を作成します。
func NewServer(analyzer Analyzer, opts Options) (*Server, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if opts.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MaxUploadBytes must be positive")
	}
	if opts.PreviewMaxDim <= 0 {
		opts.PreviewMaxDim = 640
	}

	tmpl, err := template.ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗しました: %w", err)
	}

	return &Server{
		analyzer: analyzer,
		opts:     opts,
		tmpl:     tmpl,
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

// Handler はルーティング済みの http.Handler を返します。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, s.newPage())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	page := s.newPage()

	payload, status, warning := s.readUpload(w, r)
	if warning != "" {
		page.Warnings = append(page.Warnings, warning)
		s.render(w, r, status, page)
		return
	}

	page.PreviewURI = s.preview(r.Context(), payload)

	res, err := s.analyzer.Inspect(r.Context(), payload)
	if errors.Is(err, domain.ErrMissingInput) {
		page.Warnings = append(page.Warnings, msgMissingImage)
		s.render(w, r, http.StatusBadRequest, page)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "解析サービスが予期しないエラーを返しました", "error", err)
		res = domain.AnalysisResult{Err: err}
	}

	for _, n := range res.Notices {
		page.Warnings = append(page.Warnings, n.Message())
	}
	page.Submitted = true
	page.Report = s.markdown(r.Context(), res.Output())

	status = http.StatusOK
	if res.Failed() {
		status = http.StatusBadGateway
	}
	s.render(w, r, status, page)
}

// readUpload はフォームから画像を読み出します。
// 受け付けられない場合は HTTP ステータスと画面に出す警告文を返します。
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (domain.ImagePayload, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return domain.ImagePayload{}, http.StatusRequestEntityTooLarge, msgTooLarge
		}
		slog.WarnContext(r.Context(), "フォームの解析に失敗しました", "error", err)
		return domain.ImagePayload{}, http.StatusBadRequest, msgMissingImage
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		return domain.ImagePayload{}, http.StatusBadRequest, msgMissingImage
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.WarnContext(r.Context(), "アップロードの読み込みに失敗しました", "error", err)
		return domain.ImagePayload{}, http.StatusBadRequest, msgMissingImage
	}
	if len(data) == 0 {
		return domain.ImagePayload{}, http.StatusBadRequest, msgMissingImage
	}

	mimeType, ok := detectImageType(header.Filename, header.Header.Get("Content-Type"), data)
	if !ok {
		return domain.ImagePayload{}, http.StatusUnsupportedMediaType, msgUnsupportedType
	}
	return domain.NewImagePayload(mimeType, data), http.StatusOK, ""
}

// detectImageType は拡張子と中身の両方が JPEG/PNG の場合に MIME タイプを返します。
// 申告された Content-Type が JPEG/PNG ならそれを優先します。
func detectImageType(filename, declared string, data []byte) (string, bool) {
	if !allowedExts[strings.ToLower(filepath.Ext(filename))] {
		return "", false
	}
	sniffed := http.DetectContentType(data)
	if !isJPEGOrPNG(sniffed) {
		return "", false
	}
	if isJPEGOrPNG(declared) {
		return declared, true
	}
	return sniffed, true
}

func isJPEGOrPNG(mimeType string) bool {
	return mimeType == "image/jpeg" || mimeType == "image/png"
}

func (s *Server) preview(ctx context.Context, payload domain.ImagePayload) template.URL {
	thumb, err := imgutil.Thumbnail(payload.Data, s.opts.PreviewMaxDim)
	if err != nil {
		slog.WarnContext(ctx, "プレビューの生成に失敗しました", "error", err)
		return ""
	}
	return template.URL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(thumb))
}

// markdown はモデルの出力を HTML に変換します。生の HTML はエスケープされます。
func (s *Server) markdown(ctx context.Context, src string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(src), &buf); err != nil {
		slog.WarnContext(ctx, "Markdownの変換に失敗しました", "error", err)
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(buf.String())
}

func (s *Server) newPage() pageData {
	return pageData{
		Model:         s.opts.Model,
		APIKeyMissing: s.opts.APIKeyMissing,
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page pageData) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, page); err != nil {
		slog.ErrorContext(r.Context(), "テンプレートの描画に失敗しました", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
