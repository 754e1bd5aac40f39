// Package bootstrap builds the application graph shared by the HTTP server
// and the Lambda entry point.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"calendar-agent/internal/config"
	"calendar-agent/internal/integrations/google"
	"calendar-agent/internal/integrations/ocr"
	"calendar-agent/internal/integrations/openai"
	"calendar-agent/internal/integrations/paramstore"
	"calendar-agent/internal/logging"
	"calendar-agent/internal/repository"
	"calendar-agent/internal/runner"
	"calendar-agent/internal/usecase"
)

// googleClientParam holds the OAuth client as JSON when PARAM_PREFIX is set
// and the GOOGLE_* variables are not.
const googleClientParam = "/google-oauth-client"

// App is the wired application.
type App struct {
	Process      *usecase.ProcessService
	Conversation *usecase.Conversation
	Flow         *google.Flow

	closers []func() error
}

// Close releases resources opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// Build wires every component described by cfg. AWS configuration is only
// loaded when SSM or DynamoDB is in use.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	app := &App{}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
		}
	}

	var params paramstore.Getter
	if cfg.OpenAI.ParamPrefix != "" {
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: create SSM client: %w", err)
		}
		params = ps
	}

	if err := ensureCredentials(ctx, cfg, params, logger); err != nil {
		return nil, err
	}

	llmOpts := []openai.Option{
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.OpenAI.Timeout}),
	}
	if cfg.OpenAI.APIKey != "" {
		llmOpts = append(llmOpts, openai.WithAPIKey(cfg.OpenAI.APIKey))
	}
	if params != nil {
		llmOpts = append(llmOpts, openai.WithParamStore(params, cfg.OpenAI.ParamPrefix))
	}
	llm, err := openai.NewClient(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create OpenAI client: %w", err)
	}

	store, err := app.contextStore(ctx, cfg, awsCfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	logger.Info("context store ready", "backend", cfg.Context.Backend)

	conv, err := usecase.NewConversation(llm, store, cfg.OpenAI.Model, usecase.WithConversationLogger(logger))
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("bootstrap: create conversation: %w", err)
	}

	extractor := ocr.New(ocr.Config{
		TesseractPath: cfg.OCR.TesseractPath,
		PdftoppmPath:  cfg.OCR.PdftoppmPath,
		SofficePath:   cfg.OCR.SofficePath,
		Language:      cfg.OCR.Language,
		Logger:        logger,
	})
	run := runner.New(runner.Config{
		PythonPath: cfg.Exec.PythonPath,
		WorkDir:    cfg.WorkDir,
		Timeout:    cfg.Exec.Timeout,
		Logger:     logger,
	})

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("bootstrap: create upload dir: %w", err)
	}
	proc, err := usecase.NewProcessService(conv, extractor, run, cfg.UploadDir, logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("bootstrap: create process service: %w", err)
	}

	flow, err := google.NewFlow(cfg.WorkDir, cfg.Google.RedirectURI)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("bootstrap: create oauth flow: %w", err)
	}

	app.Process = proc
	app.Conversation = conv
	app.Flow = flow
	return app, nil
}

func (a *App) contextStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (usecase.ContextStore, error) {
	switch cfg.Context.Backend {
	case config.BackendSQLite:
		s, err := repository.NewSQLiteStore(cfg.Context.DBPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: sqlite health check: %w", err)
		}
		return s, nil
	case config.BackendDynamoDB:
		s, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.Context.Table)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: create dynamodb store: %w", err)
		}
		return s, nil
	default:
		s, err := repository.NewFileStore(cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: create file store: %w", err)
		}
		return s, nil
	}
}

// ensureCredentials writes credentials.json from the environment, or from
// SSM when the environment carries no client.
func ensureCredentials(ctx context.Context, cfg *config.Config, params paramstore.Getter, logger *slog.Logger) error {
	logger = logging.OrNop(logger)
	client := google.Client{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		ProjectID:    cfg.Google.ProjectID,
		AuthURI:      cfg.Google.AuthURI,
		TokenURI:     cfg.Google.TokenURI,
		CertURL:      cfg.Google.CertURL,
	}
	if client.ClientID == "" && params != nil && !credentialsExist(cfg.WorkDir) {
		name := cfg.OpenAI.ParamPrefix + googleClientParam
		if err := paramstore.GetJSON(ctx, params, name, &client); err != nil {
			return fmt.Errorf("bootstrap: load google client: %w", err)
		}
		logger.Info("google client loaded from parameter store", "parameter", name)
	}

	written, err := google.EnsureCredentialsFile(cfg.WorkDir, client)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if written {
		logger.Info("credentials file created", "client_id", logging.RedactValue(client.ClientID))
	}
	return nil
}

func credentialsExist(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, google.CredentialsFile))
	return err == nil
}
