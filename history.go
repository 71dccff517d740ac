// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ttbt-io/delverify/runlog"
)

func newHistoryCmd(o *globalOptions) *cobra.Command {
	var flow string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded verification runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, o)
			if err != nil {
				return err
			}
			runs, err := store.List(flow)
			if err != nil {
				return err
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&flow, "flow", "", "Only show runs of this flow")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show RUN",
		Short: "Show the manifest of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, o)
			if err != nil {
				return err
			}
			r, err := loadRun(store, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run: %s\n", r.ID)
			fmt.Fprintf(out, "started: %s\n", time.Unix(0, r.StartedAt).Format(time.RFC3339))
			fmt.Fprintf(out, "duration: %s\n", r.Duration().Round(time.Millisecond))
			fmt.Fprint(out, r.Manifest())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "diff RUN_A RUN_B",
		Short: "Compare the manifests of two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, o)
			if err != nil {
				return err
			}
			a, err := loadRun(store, args[0])
			if err != nil {
				return err
			}
			b, err := loadRun(store, args[1])
			if err != nil {
				return err
			}
			diff, err := runlog.Diff(a, b)
			if err != nil {
				return err
			}
			if diff == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No differences.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		},
	})
	return cmd
}

func openStore(cmd *cobra.Command, o *globalOptions) (*runlog.Store, error) {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return nil, err
	}
	return runlog.Open(cfg.History.DataDir, os.Getenv("DV_MASTER_KEY"))
}

func loadRun(store *runlog.Store, prefix string) (*runlog.Record, error) {
	id, err := store.Resolve(prefix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no run matches %q", prefix)
		}
		return nil, err
	}
	return store.Load(id)
}

func printRuns(w io.Writer, runs []*runlog.Record) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFLOW\tSTATUS\tSTARTED\tDURATION\tSHOTS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID[:min(8, len(r.ID))],
			r.Flow,
			r.Status,
			time.Unix(0, r.StartedAt).Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Millisecond),
			len(r.Checkpoints),
		)
	}
	return tw.Flush()
}
