package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/koopa0/system-design/14-room-server/internal"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "顯示版本資訊",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:        %s\n", version)
			fmt.Fprintf(out, "Commit:         %s\n", commit)
			fmt.Fprintf(out, "Protocol:       %s\n", internal.Version)
			fmt.Fprintf(out, "Go version:     %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch:        %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "只顯示版本號")

	return cmd
}
