package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docconvert/internal/converter"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the accepted file extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, ext := range converter.AllowedExtensions() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), ext); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
