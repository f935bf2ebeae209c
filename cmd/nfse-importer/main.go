package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/document"
	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/importer"
	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/limiter"
	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/ocr"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("nfse-importer")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "nfse-importer.db", "Settings database file path")
		storagePath = fs.StringLong("storage", "./documentos", "Directory for uploaded documents")
		outPath     = fs.StringLong("out", "./exportacoes", "Directory for exported files")
		ocrType     = fs.StringLong("ocr", "tesseract", "OCR engine: 'tesseract', 'gemini', 'ollama' or 'none'")
		ocrLang     = fs.StringLong("ocr-lang", ocr.DefaultLanguage, "OCR language hint")
		tessBinary  = fs.StringLong("tesseract", "tesseract", "Tesseract binary")
		tessdata    = fs.StringLong("tessdata", "", "Tesseract tessdata directory (optional)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		concurrency = fs.IntLong("concurrency", limiter.DefaultCapacity, "Documents extracted at the same time")
		ocrTimeout  = fs.DurationLong("ocr-timeout", document.DefaultOCRTimeout, "Time budget for OCR of one page")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("NFSE_IMPORTER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...")
	db, err := importer.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	config := importer.LoadConfig(db)

	engine, err := newEngine(*ocrType, engineOptions{
		tesseract:   *tessBinary,
		tessdata:    *tessdata,
		geminiKey:   *geminiKey,
		geminiModel: *geminiModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "type", *ocrType, "error", err)
		os.Exit(1)
	}
	if engine != nil {
		defer engine.Close()
	}

	slog.Info("Initializing storage...")
	uploads, err := importer.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	exports, err := importer.NewLocalStorage(*outPath)
	if err != nil {
		slog.Error("Failed to initialize export directory", "error", err)
		os.Exit(1)
	}

	validator, err := nfse.NewValidator()
	if err != nil {
		slog.Error("Failed to compile record schema", "error", err)
		os.Exit(1)
	}

	extractor := document.NewExtractor(engine, document.Config{
		Language:   *ocrLang,
		OCRTimeout: *ocrTimeout,
	})
	orchestrator := importer.NewOrchestrator(uploads, extractor, nfse.NewRecognizer(), validator, limiter.New(*concurrency), config)
	service := importer.NewService(orchestrator, config, exports)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if files := fs.GetArgs(); len(files) > 0 {
		if err := runBatch(ctx, service, orchestrator, files); err != nil {
			slog.Error("Batch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	server := importer.NewServer(service, importer.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	service.CancelRun()
	slog.Info("Shutting down...")
}

type engineOptions struct {
	tesseract   string
	tessdata    string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
}

// newEngine returns nil for "none"; sparse pages then keep their empty text
func newEngine(kind string, opts engineOptions) (ocr.Engine, error) {
	switch kind {
	case "tesseract":
		slog.Info("Initializing Tesseract OCR...", "binary", opts.tesseract)
		return ocr.NewTesseract(ocr.TesseractConfig{
			Binary:      opts.tesseract,
			TessdataDir: opts.tessdata,
		}), nil
	case "gemini":
		apiKey := opts.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini OCR...", "model", opts.geminiModel)
		return ocr.NewGemini(apiKey, opts.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama OCR...", "url", opts.ollamaURL, "model", opts.ollamaModel)
		return ocr.NewOllama(opts.ollamaURL, opts.ollamaModel)
	case "none":
		slog.Warn("OCR disabled, pages without a text layer will be empty")
		return nil, nil
	}
	return nil, fmt.Errorf("invalid OCR engine %q: valid are tesseract, gemini, ollama or none", kind)
}

// runBatch imports the given files, processes them and writes both exports
func runBatch(ctx context.Context, service *importer.Service, orchestrator *importer.Orchestrator, files []string) error {
	orchestrator.SetReporter(func(ev importer.Event) {
		slog.Info("Job update", "file", ev.Filename, "status", ev.Status, "progress", ev.Progress, "error", ev.Error)
	})

	uploads := make([]importer.Upload, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		uploads = append(uploads, importer.Upload{Filename: filepath.Base(path), Data: data})
	}

	if _, err := service.Submit(uploads); err != nil {
		var limitErr *importer.LimitError
		if !errors.As(err, &limitErr) {
			return fmt.Errorf("submitting files: %w", err)
		}
		slog.Warn("Some files were not queued", "rejected", limitErr.Rejected, "limit", limitErr.Limit)
	}

	start := time.Now()
	summary, err := service.Run(ctx)
	if err != nil {
		return fmt.Errorf("running jobs: %w", err)
	}
	slog.Info("Run summary",
		"ok", summary.OK,
		"failed", summary.Failed,
		"records", summary.Records,
		"cancelled", summary.Cancelled,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	names, err := service.SaveExport(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	for _, name := range names {
		slog.Info("Wrote export", "filename", name)
	}
	return nil
}
