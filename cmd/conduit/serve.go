package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/conduit/pkg/runtime"
	"github.com/entrhq/conduit/pkg/types"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a conduit instance until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtime.New(runtime.Options{
				Instance:   types.InstanceID(flags.instance),
				ConfigPath: flags.configPath,
				SocketDir:  flags.socketDir,
				Headless:   headless,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cmd.Printf("conduit v%s serving on %s\n", version, rt.SocketFile())
			return rt.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false,
		"force all startup contexts headless")

	return cmd
}
