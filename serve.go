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
	"log"

	"github.com/spf13/cobra"

	"github.com/ttbt-io/delverify/gameserver"
)

func newServeCmd(o *globalOptions) *cobra.Command {
	var addr, root string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the game directory over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, o)
			if err != nil {
				return err
			}
			opts := cfg.ServerOptions()
			if addr != "" {
				opts.Addr = addr
			}
			if root != "" {
				opts.Root = root
			}

			srv, err := gameserver.StartServer(opts)
			if err != nil {
				return err
			}
			<-cmd.Context().Done()

			log.Println("Shutting down...")
			shutdownServer(srv)
			log.Println("Gracefully stopped.")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "The TCP address to listen to (default :8080)")
	cmd.Flags().StringVar(&root, "root", "", "Directory to serve (default Dungeon_devler)")
	return cmd
}
