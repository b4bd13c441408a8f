package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docconvert/internal/archive"
	"docconvert/internal/converter"
	"docconvert/internal/model"
	"docconvert/internal/workspace"
)

func newFileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [paths...]",
		Short: "Convert local files and ZIP archives",
		Long: `file converts each path to markdown. ZIP archives yield one output per
supported member. Without --output the results are written to stdout in
argument order; with it each result becomes a .md file in that directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, _ := cmd.Flags().GetInt("jobs")
			outDir, _ := cmd.Flags().GetString("output")
			return a.runFiles(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, outDir, jobs)
		},
	}
	cmd.Flags().IntP("jobs", "j", runtime.NumCPU(), "files converted concurrently")
	cmd.Flags().StringP("output", "o", "", "directory for the .md outputs")
	return cmd
}

func (a *app) runFiles(ctx context.Context, stdout, stderr io.Writer, paths []string, outDir string, jobs int) error {
	conv, err := a.converter()
	if err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	scratch, err := os.MkdirTemp("", "docconvert-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	archives := archive.New(conv, a.logger, 0)
	results := make([][]model.Output, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = convertPath(ctx, conv, archives, scratch, i, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var total, failed int
	for i, outputs := range results {
		if len(outputs) == 0 {
			fmt.Fprintf(stderr, "%s: no supported files\n", paths[i])
			failed++
			continue
		}
		for _, o := range outputs {
			total++
			if o.Result.Failed() {
				failed++
				fmt.Fprintf(stderr, "%s: %s\n", o.Source, o.Result.Text)
			}
			if err := emit(stdout, stderr, outDir, o, len(paths) > 1 || len(outputs) > 1); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, max(total, failed))
	}
	return nil
}

// convertPath converts one argument. Archives are processed in their own
// scratch directory so concurrent extractions never share files.
func convertPath(ctx context.Context, conv *converter.Converter, archives *archive.Processor, scratch string, i int, p string) []model.Output {
	name := filepath.Base(p)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	single := func(res model.ConversionResult) []model.Output {
		return []model.Output{{Source: p, Filename: stem + ".md", Result: res}}
	}

	switch {
	case !converter.Allowed(name):
		return single(model.Failure("File type not supported: %s", name))
	case converter.Detect(name) == converter.FormatArchive:
		dir := filepath.Join(scratch, fmt.Sprintf("%d", i))
		if err := os.Mkdir(dir, 0o700); err != nil {
			return single(model.Failure("Error processing %s: %v", name, err))
		}
		return archives.Process(ctx, p, dir)
	default:
		return single(conv.Convert(ctx, p))
	}
}

func emit(stdout, stderr io.Writer, outDir string, o model.Output, headed bool) error {
	if outDir == "" {
		if headed {
			fmt.Fprintf(stdout, "==> %s <==\n", o.Source)
		}
		_, err := fmt.Fprintln(stdout, o.Result.Text)
		return err
	}
	name, _, err := workspace.WriteOutput(outDir, o.Filename, o.Result.Text)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "%s -> %s\n", o.Source, filepath.Join(outDir, name))
	return nil
}
