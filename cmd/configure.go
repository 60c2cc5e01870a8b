package cmd

import (
	"strconv"

	"github.com/habedi/uniboard/config"
	"github.com/habedi/uniboard/pkg/clierr"
	"github.com/spf13/cobra"
)

// configCmd creates the command group for the CLI configuration.
func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the CLI configuration",
	}
	cmd.AddCommand(configShowCmd(opts), configSetAPIURLCmd(opts))
	return cmd
}

func (o *rootOptions) configPath() string {
	if o.configFile != "" {
		return o.configFile
	}
	return config.DefaultPath()
}

func configShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				cmd.PrintErrln("Error:", err)
				return err
			}
			uploadLimit := "unlimited"
			if cfg.UploadRateLimit > 0 {
				uploadLimit = formatBytes(cfg.UploadRateLimit) + "/s"
			}
			table := newTable(cmd.OutOrStdout(), "Setting", "Value", "Source")
			table.Append([]string{"API base URL", cfg.APIBaseURL, string(cfg.APIBaseURLSource)})
			table.Append([]string{"Timeout", cfg.Timeout.String(), ""})
			table.Append([]string{"Upload rate limit", uploadLimit, ""})
			table.Append([]string{"Single-flight refresh", strconv.FormatBool(cfg.SingleFlightRefresh), ""})
			table.Append([]string{"Config file", opts.configPath(), ""})
			table.Render()
			return nil
		},
	}
}

func configSetAPIURLCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-api-url <url>",
		Short: "Store the API base URL in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath()
			f, err := config.LoadFile(path)
			if err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if f == nil {
				f = &config.File{}
			}
			f.APIBaseURL = args[0]
			if err := config.SaveFile(path, *f); err != nil {
				cmd.PrintErrln("Error:", err)
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			cmd.Printf("API base URL set to %s in %s\n", args[0], path)
			return nil
		},
	}
}
