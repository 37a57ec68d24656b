package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type globalFlags struct {
	instance   string
	configPath string
	socketDir  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "conduit",
		Short:         "conduit: verified browser automation over a local socket",
		Long: "conduit runs browser contexts behind a Unix domain socket, accepts\n" +
			"newline-delimited JSON commands, and verifies each action's effect\n" +
			"before reporting success.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&flags.instance, "instance", "default",
		"instance name, selects the socket this process uses")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "",
		"config file path (default ~/.conduit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.socketDir, "socket-dir", "",
		"socket directory override (default from config, then system temp)")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newSendCmd(flags),
		newStatusCmd(flags),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the conduit version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("conduit v%s\n", version)
			return nil
		},
	}
}
