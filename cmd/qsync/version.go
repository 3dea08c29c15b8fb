// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kolkov/qsync/qsync"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			info := qsync.GetInfo()
			_, err := fmt.Fprintf(cc.OutOrStdout(), "qsync version %s (%s, %s)\n",
				info.Version, info.Engine, info.GoVersion)
			return err
		},
	}
}
