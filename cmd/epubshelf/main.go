package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/config"
	"github.com/yuanying/epubshelf/internal/converter"
	"github.com/yuanying/epubshelf/internal/library"
	"github.com/yuanying/epubshelf/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "epubshelf",
		Short: "Import EPUB books and export them as Markdown or PDF",
		Long: `epubshelf keeps a library of imported EPUB books.

Each archive is imported once; the parsed chapters, table of contents and
images are stored under the data directory and can be exported any number of
times as a single Markdown document, a zip of per-chapter Markdown files, or a
PDF with an outline.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newImportCmd(),
		newListCmd(),
		newShowCmd(),
		newChapterCmd(),
		newExportCmd(),
		newDeleteCmd(),
	)
	return root
}

// loadConfig reads --config and applies the flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// withService runs fn against a library opened from the command's config.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *library.Service, logger arbor.ILogger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := library.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to close library")
		}
	}()
	return fn(ctx, svc, logger)
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.epub>...",
		Short: "Import one or more EPUB archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *library.Service, _ arbor.ILogger) error {
				var errs []error
				for _, path := range args {
					sum, err := svc.ImportFile(ctx, path)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d chapters\n", sum.ID, sum.Title, sum.ChapterCount)
				}
				if len(errs) > 0 {
					return fmt.Errorf("%d of %d imports failed", len(errs), len(args))
				}
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc *library.Service, _ arbor.ILogger) error {
				books, err := svc.ListBooks(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tAUTHORS\tCHAPTERS\tIMPORTED")
				for _, b := range books {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", b.ID, b.Title, strings.Join(b.Authors, ", "), b.ChapterCount, b.ImportedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show metadata and table of contents of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *library.Service, _ arbor.ILogger) error {
				b, err := svc.GetBook(ctx, args[0])
				if err != nil {
					return err
				}
				printBook(cmd.OutOrStdout(), b)
				return nil
			})
		},
	}
}

func printBook(w io.Writer, b *book.Book) {
	md := b.Metadata()
	fmt.Fprintf(w, "ID:        %s\n", b.ID())
	fmt.Fprintf(w, "Title:     %s\n", md.Title)
	fmt.Fprintf(w, "Authors:   %s\n", strings.Join(md.Authors, ", "))
	if md.Publisher != "" {
		fmt.Fprintf(w, "Publisher: %s\n", md.Publisher)
	}
	if md.Date != "" {
		fmt.Fprintf(w, "Date:      %s\n", md.Date)
	}
	fmt.Fprintf(w, "Language:  %s\n", md.Language)
	fmt.Fprintf(w, "Chapters:  %d\n", b.ChapterCount())
	fmt.Fprintf(w, "Images:    %d\n", len(b.Images()))
	if md.Cover != "" {
		fmt.Fprintf(w, "Cover:     %s\n", md.Cover)
	}

	fmt.Fprintln(w, "\nContents:")
	book.Walk(b.Tree(), func(n *book.TocNode, level int) {
		target := "-"
		if n.Entry.Navigable() {
			target = strconv.Itoa(*n.Entry.ChapterIndex)
			if n.Entry.AnchorID != "" {
				target += "#" + n.Entry.AnchorID
			}
		}
		fmt.Fprintf(w, "%s%s [%s]\n", strings.Repeat("  ", level+1), n.Entry.Title, target)
	})
}

func newChapterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapter <book-id> <index>",
		Short: "Print the markup of one chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid chapter index %q: %w", args[1], err)
			}
			return withService(cmd, func(ctx context.Context, svc *library.Service, _ arbor.ILogger) error {
				ch, err := svc.GetChapter(ctx, args[0], index)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "<!-- %d: %s -->\n%s\n", ch.Index, ch.Title, ch.Markup)
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <book-id>",
		Short: "Export a book as Markdown or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			mode, _ := cmd.Flags().GetString("mode")
			output, _ := cmd.Flags().GetString("output")

			return withService(cmd, func(ctx context.Context, svc *library.Service, logger arbor.ILogger) error {
				res, err := svc.ExportBook(ctx, args[0], format, mode)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := res.Cleanup(); cerr != nil {
						logger.Warn().Err(cerr).Msg("Failed to remove temporary export")
					}
				}()

				dest := outputPath(output, res.Filename)
				if err := copyFile(res.Path, dest); err != nil {
					return err
				}
				for _, w := range res.Warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
				}

				summary := dest
				if res.MediaType == "application/pdf" {
					if pages, err := pdfPages(dest); err == nil {
						summary += fmt.Sprintf(" (%d pages)", pages)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().String("format", "markdown", "Output format: markdown or pdf")
	cmd.Flags().String("mode", "single", "Markdown mode: single or chapters")
	cmd.Flags().StringP("output", "o", "", "Output file or directory (default: suggested name in the current directory)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book, its images and its fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *library.Service, _ arbor.ILogger) error {
				if err := svc.DeleteBook(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

// outputPath resolves -o: an existing directory receives the suggested file
// name, anything else is used as the file path.
func outputPath(output, filename string) string {
	if output == "" {
		return filename
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, filename)
	}
	return output
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()
	_, err = io.Copy(out, in)
	return err
}

func pdfPages(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return converter.PageCount(f)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
