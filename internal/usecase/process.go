package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"calendar-agent/internal/domain"
	"calendar-agent/internal/integrations/ocr"
	"calendar-agent/internal/logging"
)

// PreflightStores are emptied before every model call.
var PreflightStores = []string{"gpt4oContext1.json", "gpt4oMiniContext1.json"}

var allowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "pdf": true, "docx": true,
}

type TextExtractor interface {
	Extract(ctx context.Context, path string, pages domain.PageSelection) ocr.Result
}

type CodeRunner interface {
	Run(ctx context.Context, code string) domain.ExecutionReport
}

type ProcessService struct {
	conv      *Conversation
	extractor TextExtractor
	runner    CodeRunner
	uploadDir string
	logger    *slog.Logger
}

// Upload is a file submitted alongside the text. A nil Upload or an empty
// Filename means nothing was uploaded.
type Upload struct {
	Filename string
	Body     io.Reader
}

type ProcessInput struct {
	Text          string
	SelectedPages string
	Upload        *Upload
}

type ProcessOutput struct {
	CombinedInput   string
	GeneratedCode   string
	ExecutionOutput string
	Report          domain.ExecutionReport
}

func NewProcessService(conv *Conversation, extractor TextExtractor, runner CodeRunner, uploadDir string, logger *slog.Logger) (*ProcessService, error) {
	if conv == nil {
		return nil, errors.New("usecase: conversation must not be nil")
	}
	if extractor == nil {
		return nil, errors.New("usecase: extractor must not be nil")
	}
	if runner == nil {
		return nil, errors.New("usecase: runner must not be nil")
	}
	if strings.TrimSpace(uploadDir) == "" {
		uploadDir = os.TempDir()
	}
	return &ProcessService{
		conv:      conv,
		extractor: extractor,
		runner:    runner,
		uploadDir: uploadDir,
		logger:    logging.OrNop(logger),
	}, nil
}

// Process runs one request through extraction, prompting, code generation and
// execution. Only invalid input and a failure to stage the upload are
// returned as errors; every later failure degrades to empty results.
func (s *ProcessService) Process(ctx context.Context, in ProcessInput) (ProcessOutput, error) {
	pages, err := ParsePageSelection(in.SelectedPages)
	if err != nil {
		return ProcessOutput{}, err
	}

	var extracted string
	if in.Upload != nil && in.Upload.Filename != "" {
		ext, ok := allowedExtension(in.Upload.Filename)
		if !ok {
			return ProcessOutput{}, newError(ErrorInvalidInput, ReasonFileTypeNotAllowed, nil)
		}
		path, err := s.saveUpload(in.Upload, ext)
		if err != nil {
			return ProcessOutput{}, newError(ErrorInternal, ReasonUploadSave, err)
		}
		res := s.extractor.Extract(ctx, path, pages)
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("process.scratch_remove_failed", "error", rmErr.Error())
		}
		extracted = res.Text
	}

	combined := CombineInputs(in.Text, extracted)
	s.logger.Info("process.combined_input", "length", len(combined))

	reply := s.modelReply(ctx, BuildCalendarPrompt(combined))
	code := ExtractCode(reply)
	report := s.runner.Run(ctx, code)

	return ProcessOutput{
		CombinedInput:   combined,
		GeneratedCode:   code,
		ExecutionOutput: report.Output(),
		Report:          report,
	}, nil
}

// modelReply returns the trimmed reply, or "" when the model call failed or
// produced nothing.
func (s *ProcessService) modelReply(ctx context.Context, prompt string) string {
	if err := s.conv.Reset(ctx, PreflightStores...); err != nil {
		s.logger.Error("process.model_failed", "stage", "preflight_reset", "error", err.Error())
		return ""
	}
	reply, err := s.conv.Send(ctx, prompt, false)
	if err != nil {
		s.logger.Error("process.model_failed", "stage", "chat", "error", err.Error())
		return ""
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		s.logger.Warn("process.model_empty_reply")
	}
	return reply
}

func (s *ProcessService) saveUpload(u *Upload, ext string) (string, error) {
	if u.Body == nil {
		return "", errors.New("usecase: upload has no body")
	}
	name := SecureFilename(u.Filename)
	if !strings.HasSuffix(strings.ToLower(name), "."+ext) {
		name = "upload." + ext
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+"_"+name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("usecase: create upload: %w", err)
	}
	_, copyErr := io.Copy(f, u.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("usecase: write upload: %w", err)
	}
	return path, nil
}

func allowedExtension(filename string) (string, bool) {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return "", false
	}
	ext := strings.ToLower(filename[i+1:])
	return ext, allowedExtensions[ext]
}

// SecureFilename reduces a client supplied name to ASCII letters, digits,
// '_', '-' and '.', with path separators and whitespace collapsed to '_'.
func SecureFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}
