package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/conduit/pkg/dispatch"
	"github.com/entrhq/conduit/pkg/ipc"
	"github.com/entrhq/conduit/pkg/types"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether an instance is up and what it is serving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			client, err := ipc.Dial(cfg.SocketDir, types.InstanceID(flags.instance))
			if err != nil {
				cmd.Println(renderDown(flags.instance))
				return fmt.Errorf("instance %s is not reachable: %w", flags.instance, err)
			}
			defer client.Close()

			payload, err := json.Marshal(dispatch.Command{Op: dispatch.OpStatus})
			if err != nil {
				return err
			}
			reply, err := client.SendCommand(string(payload), cfg.SendTimeout())
			if err != nil {
				return err
			}

			if asJSON {
				cmd.Println(reply)
				return nil
			}

			var resp dispatch.Response
			if err := json.Unmarshal([]byte(reply), &resp); err != nil {
				cmd.Println(reply)
				return nil
			}
			cmd.Println(renderStatus(flags.instance, resp))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")

	return cmd
}
