// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kolkov/qsync/internal/stress"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the stress scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cc.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, sc := range stress.Scenarios() {
				fmt.Fprintf(tw, "%s\t%s\n", sc.Name, sc.Description)
			}
			return tw.Flush()
		},
	}
}
