package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docconvert/internal/converter"
	"docconvert/internal/workspace"
)

func newURLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Convert a web page, YouTube video or s3:// object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.converter()
			if err != nil {
				return err
			}
			res := conv.ConvertURI(cmd.Context(), args[0])
			if res.Failed() {
				return errors.New(res.Text)
			}

			outDir, _ := cmd.Flags().GetString("output")
			if outDir == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), res.Text)
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			name, _, err := workspace.WriteOutput(outDir, converter.OutputName(args[0]), res.Text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s\n", args[0], filepath.Join(outDir, name))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "directory for the .md output")
	return cmd
}
