// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/parallax-foundation/parallax/cmd/parallax-vrctl/cli"
	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/service"
	"github.com/parallax-foundation/parallax/lib/version"
	"github.com/parallax-foundation/parallax/vr"
)

const (
	defaultSocketPath = "/run/parallax/vrmanager.sock"
	defaultTokenPath  = "/etc/parallax/vrctl.token"
)

func main() {
	root := rootCommand()
	if err := root.Execute(os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// connection holds the per-subcommand socket and token flags.
type connection struct {
	socketPath string
	tokenPath  string
}

// flags registers the connection flags on a fresh flag set.
func (c *connection) flags(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&c.socketPath, "socket", defaultSocketPath, "vrmanager daemon socket path")
	flagSet.StringVar(&c.tokenPath, "token-file", defaultTokenPath, "service token file")
	return flagSet
}

func (c *connection) client() (*service.ServiceClient, error) {
	return service.NewServiceClient(c.socketPath, c.tokenPath)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:        "parallax-vrctl",
		Description: "Control and inspect the Parallax VR mode coordinator daemon.",
		Subcommands: []*cli.Command{
			statusCommand(),
			getModeCommand(),
			setModeCommand(),
			isCurrentCommand(),
			checkCommand(),
			notifyUserCommand(),
			reloadCommand(),
			watchCommand(),
			dumpCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("parallax-vrctl %s\n", version.Info())
					return nil
				},
			},
		},
	}
}

func statusCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "status",
		Summary: "Show daemon status",
		Usage:   "parallax-vrctl status [flags]",
		Flags:   func() *pflag.FlagSet { return conn.flags("status") },
		Run: func(args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			var status struct {
				Service       string  `cbor:"service"`
				Version       string  `cbor:"version"`
				UptimeSeconds float64 `cbor:"uptime_seconds"`
			}
			if err := client.Call(ctx, "status", nil, &status); err != nil {
				return err
			}
			fmt.Printf("%s %s, up %.0fs\n", status.Service, status.Version, status.UptimeSeconds)
			return nil
		},
	}
}

func getModeCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "get-mode",
		Summary: "Print the current VR mode flag",
		Usage:   "parallax-vrctl get-mode [flags]",
		Flags:   func() *pflag.FlagSet { return conn.flags("get-mode") },
		Run: func(args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			var state struct {
				Enabled bool `cbor:"enabled"`
			}
			if err := client.Call(ctx, "get-mode-state", nil, &state); err != nil {
				return err
			}
			fmt.Println(onOff(state.Enabled))
			return nil
		},
	}
}

func setModeCommand() *cli.Command {
	conn := &connection{}
	var user int
	var calling string
	return &cli.Command{
		Name:    "set-mode",
		Summary: "Enable or disable VR mode",
		Description: `Enable or disable VR mode with the given listener component as the
bind target. The daemon flips the flag either way; the exit status
reflects whether the target was a bindable listener.`,
		Usage: "parallax-vrctl set-mode <on|off> <package/Class> [flags]",
		Examples: []cli.Example{
			{
				Description: "Enable VR mode with the HUD listener",
				Command:     "parallax-vrctl set-mode on io.parallax.hud/HudListener",
			},
			{
				Description: "Disable VR mode",
				Command:     "parallax-vrctl set-mode off io.parallax.hud/HudListener",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("set-mode")
			flagSet.IntVar(&user, "user", 0, "user the listener binds for")
			flagSet.StringVar(&calling, "calling", "", "component to report focus events for")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <on|off> and <package/Class> arguments")
			}
			enabled, err := parseOnOff(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			fields := map[string]any{
				"enabled": enabled,
				"target":  args[1],
				"user":    user,
			}
			if calling != "" {
				fields["calling"] = calling
			}
			var result struct {
				Valid   bool `cbor:"valid"`
				Enabled bool `cbor:"enabled"`
			}
			if err := client.Call(ctx, "set-vr-mode", fields, &result); err != nil {
				return err
			}
			fmt.Printf("mode %s\n", onOff(result.Enabled))
			if !result.Valid {
				return fmt.Errorf("target %s is not a bindable listener", args[1])
			}
			return nil
		},
	}
}

func isCurrentCommand() *cli.Command {
	conn := &connection{}
	var user int
	return &cli.Command{
		Name:    "is-current",
		Summary: "Check whether a package owns the bound listener",
		Usage:   "parallax-vrctl is-current <package> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("is-current")
			flagSet.IntVar(&user, "user", 0, "user to check for")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected a <package> argument")
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			var result struct {
				Current bool `cbor:"current"`
			}
			fields := map[string]any{"package": args[0], "user": user}
			if err := client.Call(ctx, "is-current-listener", fields, &result); err != nil {
				return err
			}
			fmt.Println(result.Current)
			if !result.Current {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	conn := &connection{}
	var user int
	return &cli.Command{
		Name:    "check",
		Summary: "Check a listener component's validity",
		Usage:   "parallax-vrctl check <package/Class> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("check")
			flagSet.IntVar(&user, "user", 0, "user to check for")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected a <package/Class> argument")
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			var result struct {
				Validity string `cbor:"validity"`
				OK       bool   `cbor:"ok"`
			}
			fields := map[string]any{"component": args[0], "user": user}
			if err := client.Call(ctx, "check-listener-validity", fields, &result); err != nil {
				return err
			}
			fmt.Println(result.Validity)
			if !result.OK {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func notifyUserCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "notify-user",
		Summary: "Rebind the current listener for a new foreground user",
		Usage:   "parallax-vrctl notify-user <user> [flags]",
		Flags:   func() *pflag.FlagSet { return conn.flags("notify-user") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected a <user> argument")
			}
			user, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user %q: %w", args[0], err)
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			return client.Call(ctx, "notify-user-change", map[string]any{"user": user}, nil)
		},
	}
}

func reloadCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "reload",
		Summary: "Reload the package manifest",
		Usage:   "parallax-vrctl reload [flags]",
		Flags:   func() *pflag.FlagSet { return conn.flags("reload") },
		Run: func(args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			return client.Call(ctx, "reload-packages", nil, nil)
		},
	}
}

func watchCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "watch",
		Summary: "Stream mode-change notifications",
		Description: `Register as a mode-change listener and print each transition as it
happens. The first line is the current mode at registration time.
Press Ctrl-C to stop.`,
		Usage: "parallax-vrctl watch [flags]",
		Flags: func() *pflag.FlagSet { return conn.flags("watch") },
		Run: func(args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			stream, err := client.Stream(ctx, "register-listener", nil)
			if err != nil {
				return err
			}
			defer stream.Close()

			// Unblock the decoder when the context is cancelled.
			go func() {
				<-ctx.Done()
				stream.Close()
			}()

			decoder := codec.NewDecoder(stream)
			for {
				// A rejected registration arrives as an error envelope
				// instead of a mode frame; both decode into the union.
				var frame struct {
					Event   string `cbor:"event"`
					Enabled bool   `cbor:"enabled"`
					Error   string `cbor:"error"`
				}
				if err := decoder.Decode(&frame); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("reading mode stream: %w", err)
				}
				if frame.Error != "" {
					return fmt.Errorf("registration rejected: %s", frame.Error)
				}
				fmt.Printf("%s %s\n", frame.Event, onOff(frame.Enabled))
			}
		},
	}
}

func dumpCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "dump",
		Summary: "Print daemon diagnostic state",
		Usage:   "parallax-vrctl dump [flags]",
		Flags:   func() *pflag.FlagSet { return conn.flags("dump") },
		Run: func(args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := conn.client()
			if err != nil {
				return err
			}
			var dump vr.StateDump
			if err := client.Call(ctx, "dump", nil, &dump); err != nil {
				return err
			}
			fmt.Print(dump.String())
			return nil
		},
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func parseOnOff(arg string) (bool, error) {
	switch arg {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected \"on\" or \"off\", got %q", arg)
	}
}
