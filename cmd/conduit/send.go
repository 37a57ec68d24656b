package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/conduit/pkg/config"
	"github.com/entrhq/conduit/pkg/dispatch"
	"github.com/entrhq/conduit/pkg/ipc"
	"github.com/entrhq/conduit/pkg/types"
)

func loadConfig(flags *globalFlags) (config.Config, error) {
	path := flags.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if flags.socketDir != "" {
		cfg.SocketDir = flags.socketDir
	}
	return cfg, nil
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	var (
		op        string
		context   string
		selector  string
		value     string
		level     string
		timeoutMS int
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one command to a running instance",
		Example: `  conduit send --op click --context tab-1 --selector "#submit"
  conduit send --op type --context tab-1 --selector "input[name=q]" --value "hello" --level strict`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			payload, err := json.Marshal(dispatch.Command{
				Op:        op,
				Context:   context,
				Selector:  selector,
				Value:     value,
				Level:     level,
				TimeoutMS: timeoutMS,
			})
			if err != nil {
				return err
			}

			client, err := ipc.Dial(cfg.SocketDir, types.InstanceID(flags.instance))
			if err != nil {
				return fmt.Errorf("failed to reach instance %s: %w", flags.instance, err)
			}
			defer client.Close()

			reply, err := client.SendCommand(string(payload), cfg.SendTimeout())
			if err != nil {
				return err
			}

			if raw {
				cmd.Println(reply)
				return nil
			}
			return printResponse(cmd, reply)
		},
	}

	cmd.Flags().StringVar(&op, "op", "", "operation: click, type, select, focus, blur, read, status")
	cmd.Flags().StringVar(&context, "context", "", "target context id")
	cmd.Flags().StringVar(&selector, "selector", "", "CSS selector of the target element")
	cmd.Flags().StringVar(&value, "value", "", "value for type and select operations")
	cmd.Flags().StringVar(&level, "level", "", "verification level: none, standard, strict")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 0, "per-command verification budget override")
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON response")
	cmd.MarkFlagRequired("op")

	return cmd
}

func printResponse(cmd *cobra.Command, reply string) error {
	var resp dispatch.Response
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		// Not an envelope we understand; show it as-is.
		cmd.Println(reply)
		return nil
	}

	cmd.Println(renderResponse(resp))
	if !resp.OK {
		return fmt.Errorf("command failed: %s", resp.Status)
	}
	return nil
}
