// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EVChargeAdvisor/pkg/ux"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the enrichment cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show where the cache lives and how many records it holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeCache, err := a.openCache()
			if err != nil {
				return err
			}
			defer closeCache()

			n, err := store.DiskEntries(cmd.Context())
			if err != nil {
				return err
			}
			p := ux.NewPrinter(cmd.OutOrStdout())
			if a.cfg.Cache.InMemory {
				p.KeyValue("location", "memory")
			} else {
				p.KeyValue("location", a.cfg.Cache.Dir)
			}
			p.KeyValue("disk records", fmt.Sprintf("%d", n))
			p.KeyValue("raw-api ttl", a.cfg.Cache.TTL.RawAPI.String())
			p.KeyValue("reference ttl", a.cfg.Cache.TTL.Reference.String())
			return nil
		},
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeCache, err := a.openCache()
			if err != nil {
				return err
			}
			defer closeCache()

			removed, err := store.Purge(cmd.Context())
			if err != nil {
				return err
			}
			ux.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Removed %d expired records", removed))
			return nil
		},
	}

	cmd.AddCommand(stats, purge)
	return cmd
}
