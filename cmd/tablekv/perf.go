package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tablekv"
)

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Run a local performance smoke test",
	Long: `Create a throwaway database in a temp directory, run a round of
inserts, selects and cursor scans, and print the engine's operation counters
in Prometheus text format.`,
	RunE: runPerf,
}

func init() {
	perfCmd.Flags().Int("records", 10000, "number of records to insert")
	perfCmd.Flags().Bool("fsync", false, "fsync every journal append")
}

// rawKV passes bytes through the serialization boundary unchanged.
type rawKV []byte

func (m rawKV) MarshalBinary() ([]byte, error) { return m, nil }
func (m *rawKV) UnmarshalBinary(b []byte) error {
	*m = append((*m)[:0], b...)
	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	records := viper.GetInt("records")

	home, err := os.MkdirTemp("", "tablekv-perf-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(home) }()

	cfg := tablekv.DefaultConfig()
	cfg.Journal.Fsync = viper.GetBool("fsync")

	db, err := tablekv.OpenConfig(home, true, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tbl, err := db.AddTable("perf", nil, true)
	if err != nil {
		return err
	}

	for i := 0; i < records; i++ {
		k := rawKV(fmt.Sprintf("key-%08d", i))
		v := rawKV(fmt.Sprintf("value-%08d", i))
		if err := tbl.Insert(&k, &v); err != nil {
			return err
		}
	}
	for i := 0; i < records; i++ {
		k := rawKV(fmt.Sprintf("key-%08d", i))
		var v rawKV
		if err := tbl.Select(&k, &v); err != nil {
			return err
		}
	}

	rs, err := tablekv.NewRecordset(tbl)
	if err != nil {
		return err
	}
	defer func() { _ = rs.Close() }()
	var k, v rawKV
	scanned := 0
	for {
		more, err := rs.Fetch(&k, &v)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		scanned++
	}

	fmt.Printf("inserted %d, selected %d, scanned %d\n\n", records, records, scanned)
	tablekv.WritePrometheus(os.Stdout)
	return nil
}
