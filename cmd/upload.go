package cmd

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/pkg/clierr"
	"github.com/habedi/uniboard/pkg/hasher"
	"github.com/habedi/uniboard/pkg/operations"
	"github.com/habedi/uniboard/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// uploadCmd creates the command group for the data upload endpoints.
func uploadCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload data files and manage upload history",
	}
	cmd.AddCommand(
		uploadFileCmd(opts),
		uploadDirCmd(opts),
		uploadLogsCmd(opts),
		uploadStatsCmd(opts),
		uploadDeleteCmd(opts),
	)
	return cmd
}

func uploadFileCmd(opts *rootOptions) *cobra.Command {
	var replace, quiet bool
	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Upload one CSV or Excel file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := validation.ValidateUploadFile(path); err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}

			hash, err := hasher.GenerateHash(path, hasher.DefaultAlgo)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Msg("Failed to hash data file")
			}

			var progress io.Writer
			if !quiet {
				bar := progressbar.NewOptions64(-1,
					progressbar.OptionSetDescription("Uploading "+filepath.Base(path)),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionShowBytes(true),
					progressbar.OptionThrottle(100*time.Millisecond),
					progressbar.OptionClearOnFinish(),
					progressbar.OptionSpinnerType(14),
				)
				defer func() { _ = bar.Finish() }()
				progress = bar
			}

			resp, err := a.client.UploadDataFile(cmd.Context(), path, replace, progress)
			if err != nil {
				return reportError(cmd, "upload "+filepath.Base(path), err)
			}
			printUploadResponse(cmd, path, hash, resp)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&replace, "replace", "r", false, "Replace existing records of the same data type")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show upload progress")
	return cmd
}

func printUploadResponse(cmd *cobra.Command, path, hash string, resp *client.UploadResponse) {
	table := newTable(cmd.OutOrStdout(), "Field", "Value")
	table.Append([]string{"File", filepath.Base(path)})
	if hash != "" {
		table.Append([]string{hasher.DefaultAlgo, hash})
	}
	table.Append([]string{"Upload log ID", itoa(resp.UploadLogID)})
	table.Append([]string{"Status", resp.Status})
	table.Append([]string{"Data type", resp.DataType})
	table.Append([]string{"Records", fmt.Sprintf("%d/%d", resp.ProcessedRecords, resp.TotalRecords)})
	if resp.Message != "" {
		table.Append([]string{"Message", resp.Message})
	}
	table.Render()
}

func uploadDirCmd(opts *rootOptions) *cobra.Command {
	var replace, recursive, dryRun bool
	var workers int
	var algo string
	cmd := &cobra.Command{
		Use:   "dir <directory>",
		Short: "Upload every CSV and Excel file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateWorkerCount(workers); err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if !hasher.IsValidHashAlgo(algo) {
				msg := fmt.Sprintf("unsupported hash algorithm %q (supported: %s)", algo, strings.Join(hasher.HashAlgorithms, ", "))
				cmd.PrintErrln("Error:", msg)
				return clierr.New(clierr.Validation, msg, nil)
			}
			files, err := operations.FindUploadFiles(args[0], recursive)
			if err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if len(files) == 0 {
				cmd.Println("No CSV or Excel files found in", args[0])
				return nil
			}
			if dryRun {
				return listUploadFiles(cmd, files, algo, workers)
			}
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}

			results := operations.UploadFiles(cmd.Context(), a.client, files, replace, workers)
			table := newTable(cmd.OutOrStdout(), "File", "Status", "Records", "Error")
			for _, r := range results {
				name := filepath.Base(r.File)
				if r.Err != nil {
					table.Append([]string{name, "failed", "", clierr.FromAPI("upload "+name, r.Err).Message})
					continue
				}
				table.Append([]string{name, r.Response.Status, fmt.Sprintf("%d/%d", r.Response.ProcessedRecords, r.Response.TotalRecords), ""})
			}
			table.Render()

			ok, failed := operations.Summarize(results)
			cmd.Printf("Uploaded %d of %d file(s).\n", ok, len(results))
			if len(failed) > 0 {
				for _, r := range results {
					if e := clierr.FromAPI("upload", r.Err); e != nil && e.Message == clierr.SessionExpiredMessage {
						return e
					}
				}
				msg := "failed to upload: " + strings.Join(failed, ", ")
				cmd.PrintErrln("Error:", msg)
				return clierr.New(clierr.Server, msg, nil)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&replace, "replace", "r", false, "Replace existing records of the same data type")
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "Search subdirectories too")
	cmd.Flags().IntVarP(&workers, "workers", "w", 2, "Number of concurrent uploads")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the files and their checksums without uploading")
	cmd.Flags().StringVar(&algo, "algo", hasher.DefaultAlgo, "Checksum algorithm for --dry-run")
	return cmd
}

// listUploadFiles prints the files an upload would send with their checksums.
func listUploadFiles(cmd *cobra.Command, files []string, algo string, workers int) error {
	hashes := make(map[string]operations.HashResult, len(files))
	for res := range operations.GenerateHashes(cmd.Context(), files, algo, workers) {
		hashes[res.File] = res
	}
	table := newTable(cmd.OutOrStdout(), "File", algo)
	for _, f := range files {
		res, ok := hashes[f]
		switch {
		case !ok:
			table.Append([]string{f, "skipped"})
		case res.Err != nil:
			table.Append([]string{f, "error: " + res.Err.Error()})
		default:
			table.Append([]string{f, res.Hash})
		}
	}
	table.Render()
	cmd.Printf("%d file(s) would be uploaded.\n", len(files))
	return nil
}

func uploadLogsCmd(opts *rootOptions) *cobra.Command {
	var page, limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the upload history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			resp, err := a.client.UploadLogs(cmd.Context(), page, limit)
			if err != nil {
				return reportError(cmd, "fetch the upload history", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if len(resp.Logs) == 0 {
				cmd.Println("No uploads yet.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), "ID", "File", "Size", "Status", "Records", "Uploaded at")
			for _, l := range resp.Logs {
				size := ""
				if l.FileSize != nil {
					size = formatBytes(*l.FileSize)
				}
				records := ""
				if l.TotalRecords != nil {
					processed := 0
					if l.ProcessedRecords != nil {
						processed = *l.ProcessedRecords
					}
					records = fmt.Sprintf("%d/%d", processed, *l.TotalRecords)
				}
				status := l.Status
				if l.ErrorMessage != nil && *l.ErrorMessage != "" {
					status += ": " + *l.ErrorMessage
				}
				table.Append([]string{itoa(l.ID), l.Filename, size, status, records, l.UploadedAt})
			}
			table.Render()
			cmd.Printf("Page %d, %d upload(s) in total\n", resp.Page, resp.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Entries per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response as JSON")
	return cmd
}

func uploadStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many records are stored per data type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			s, err := a.client.DataStatistics(cmd.Context())
			if err != nil {
				return reportError(cmd, "fetch data statistics", err)
			}
			table := newTable(cmd.OutOrStdout(), "Data type", "Records")
			for _, row := range []struct {
				name string
				st   client.DataTypeStatistics
			}{
				{"kpi", s.KPI},
				{"publication", s.Publication},
				{"research", s.Research},
				{"student", s.Student},
			} {
				name := row.st.Type
				if name == "" {
					name = row.name
				}
				table.Append([]string{name, itoa(row.st.Count)})
			}
			table.Render()
			return nil
		},
	}
}

func uploadDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <upload-log-id>",
		Short: "Delete the records created by one upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err == nil {
				err = validation.ValidatePositiveID("upload log ID", id)
			} else {
				err = fmt.Errorf("invalid upload log ID %q", args[0])
			}
			if err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}

			if !yes {
				in := bufio.NewReader(cmd.InOrStdin())
				answer := promptForInput(cmd, in, fmt.Sprintf("Delete all records of upload %d? [y/N]: ", id))
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					cmd.Println("Aborted.")
					return nil
				}
			}

			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			resp, err := a.client.DeleteUpload(cmd.Context(), id)
			if err != nil {
				return reportError(cmd, "delete upload "+args[0], err)
			}
			msg := resp.Message
			if msg == "" {
				msg = fmt.Sprintf("Upload %d deleted.", id)
			}
			cmd.Printf("%s (%d record(s) removed)\n", msg, resp.DeletedRecords)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Do not ask for confirmation")
	return cmd
}
