package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stardag-dev/stardag-go/internal/gitinfo"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stardag CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			if sha, err := gitinfo.ShortSHA("."); err == nil && sha != "" {
				fmt.Println("commit:", sha)
			}
			return nil
		},
	}
}
