package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tOgg1/storechat/internal/logging"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if used := a.loader.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "# %s\n", used)
			}
			payload, err := yaml.Marshal(logging.RedactMap(a.loader.AllSettings()))
			if err != nil {
				return Exitf(ExitCodeFailure, "encode config: %v", err)
			}
			_, err = out.Write(payload)
			return err
		},
	})
	return cmd
}
