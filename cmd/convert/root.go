package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docconvert/internal/config"
	"docconvert/internal/converter"
	"docconvert/internal/logging"
	"docconvert/internal/storage"
)

// version is set at build time via ldflags.
var version = "dev"

// app carries the state shared by every subcommand.
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	root, _ := buildRoot()
	return root
}

func buildRoot() (*cobra.Command, *app) {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "docconvert",
		Short: "Convert documents, archives and web pages to markdown",
		Long: `docconvert converts office documents, PDFs, spreadsheets, images,
structured data and ZIP archives to markdown, and fetches web pages and
YouTube transcripts.

Settings come from flags, DOCCONVERT_* environment variables or an optional
docconvert.yaml in the working directory or ~/.config/docconvert.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.Bool("html-markdown", false, "render HTML as structural markdown instead of flat text")
	pf.Int64("pdf-max-bytes", 0, "largest PDF to convert (0 selects the default)")
	pf.Int("sheet-rows", 0, "rows rendered per spreadsheet sheet (0 selects the default)")
	pf.Duration("fetch-timeout", 30*time.Second, "timeout for fetching URLs")
	pf.String("tesseract", "tesseract", "tesseract binary used for image OCR")
	pf.String("ocr-lang", "eng", "tesseract language")
	pf.String("minio-endpoint", "", "object storage endpoint for s3:// URLs")
	pf.String("minio-access-key", "", "object storage access key")
	pf.String("minio-secret-key", "", "object storage secret key")
	pf.String("minio-bucket", "", "object storage bucket")
	pf.Bool("minio-ssl", false, "use TLS for object storage")
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		newFileCmd(a),
		newURLCmd(a),
		newFormatsCmd(),
		newVersionCmd(),
	)
	return root, a
}

func (a *app) init(cmd *cobra.Command) error {
	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.SetConfigName("docconvert")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".config", "docconvert"))
		}
	}

	a.v.SetEnvPrefix("DOCCONVERT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.v.GetString("config") != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	a.logger = logging.New(cmd.ErrOrStderr(), a.v.GetString("log-level"), time.Local)
	return nil
}

// converter builds a Converter from the resolved settings.
func (a *app) converter() (*converter.Converter, error) {
	opts := converter.Options{
		MaxPDFBytes:   a.v.GetInt64("pdf-max-bytes"),
		SheetRowLimit: a.v.GetInt("sheet-rows"),
		FetchTimeout:  a.v.GetDuration("fetch-timeout"),
		HTMLMarkdown:  a.v.GetBool("html-markdown"),
		OCR:           converter.NewTesseract(a.v.GetString("tesseract"), a.v.GetString("ocr-lang")),
		Logger:        a.logger,
	}

	minioCfg := config.MinIOConfig{
		Endpoint:  a.v.GetString("minio-endpoint"),
		AccessKey: a.v.GetString("minio-access-key"),
		SecretKey: a.v.GetString("minio-secret-key"),
		Bucket:    a.v.GetString("minio-bucket"),
		UseSSL:    a.v.GetBool("minio-ssl"),
	}
	if minioCfg.Enabled() {
		objects, err := storage.NewMinIO(minioCfg)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		opts.Objects = objects
	}
	return converter.New(opts), nil
}
