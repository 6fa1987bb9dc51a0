package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tablekv"
	"tablekv/internal/bx"
	"tablekv/internal/snapshot"
)

var infoCmd = &cobra.Command{
	Use:   "info <home>",
	Short: "List the persisted stores of a database home",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := tablekv.Stat(args[0])
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("no stores")
			return nil
		}
		fmt.Printf("%-24s %-8s %s\n", "NAME", "KIND", "RECORDS")
		for _, info := range infos {
			fmt.Printf("%-24s %-8s %d\n", info.Name, info.Kind, info.Records)
		}
		return nil
	},
}

var sequencesCmd = &cobra.Command{
	Use:   "sequences <home>",
	Short: "List sequence counters and their last allocated values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(args[0], "__seq.tbl")
		n := 0
		_, err := snapshot.Read(path, func(k, v []byte) error {
			if len(v) == 8 {
				fmt.Printf("%-24s %d\n", string(k), bx.I64(v))
				n++
			}
			return nil
		})
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("no sequences")
		}
		return nil
	},
}
