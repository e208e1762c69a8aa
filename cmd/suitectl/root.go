package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalOptions struct {
	configPath   string
	tenant       string
	printMetrics bool

	// logger replaces the configured logger when set.
	logger *zap.Logger
}

// newRootCmd builds the command tree. The returned cleanup releases the
// resources of the executed command and must be called after Execute.
func newRootCmd(opts *globalOptions, out, errOut io.Writer) (*cobra.Command, func()) {
	var a *app

	root := &cobra.Command{
		Use:           "suitectl",
		Short:         "Command-line client for the business suite backends",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["standalone"] == "true" {
				return nil
			}
			built, err := buildApp(cmd.Context(), opts, out, errOut)
			if err != nil {
				return err
			}
			a = built
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a == nil || !opts.printMetrics {
				return nil
			}
			a.cache.Wait()
			return a.writeMetrics(out)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the configuration file")
	root.PersistentFlags().StringVar(&opts.tenant, "tenant", "", "Tenant to act for, overriding the configuration")
	root.PersistentFlags().BoolVar(&opts.printMetrics, "print-metrics", false, "Print collected metrics after the command")

	appFn := func() *app { return a }
	root.AddCommand(
		newVersionCmd(),
		newLoginCmd(appFn),
		newLogoutCmd(appFn),
		newWhoamiCmd(appFn),
		newStatusCmd(appFn),
		newTransactionsCmd(appFn),
		newContactsCmd(appFn),
		newItemsCmd(appFn),
		newConversationsCmd(appFn),
	)
	cleanup := func() {
		if a != nil {
			a.close()
			a = nil
		}
	}
	return root, cleanup
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the suitectl version",
		Annotations: map[string]string{"standalone": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "suitectl %s (%s)\n", version, commit)
			return err
		},
	}
}
