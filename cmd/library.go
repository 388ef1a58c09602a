package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/export"
)

func newLibraryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "List, export, and import library books",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List books in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closeLibrary, err := openLibrary(opts.cfg)
			if err != nil {
				return err
			}
			defer closeLibrary()

			books, err := lib.List(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderBooks(books))
			fmt.Fprintf(cmd.OutOrStdout(), "%d books\n", len(books))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export FILE.parquet",
		Short: "Write the library to a Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closeLibrary, err := openLibrary(opts.cfg)
			if err != nil {
				return err
			}
			defer closeLibrary()

			n, err := export.Export(cmd.Context(), lib, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d books to %s\n", n, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE.parquet",
		Short: "Add books from a Parquet file, skipping ones already in the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closeLibrary, err := openLibrary(opts.cfg)
			if err != nil {
				return err
			}
			defer closeLibrary()

			added, skipped, err := export.Import(cmd.Context(), lib, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d books (%d already in the library)\n", added, skipped)
			return nil
		},
	})

	return cmd
}
