// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command regionfsmount mounts a regionfs-formatted byte region as a local
// FUSE file system, the reference host for the library in the parent
// package. It plays the same role samples/mount_hello plays for hellofs,
// scaled up with the config/daemonize/metrics surface a real deployment
// needs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacobsa/regionfs"
)

var (
	errMountPointRequired = errors.New("mount_point argument must not be empty")
	errRegionSizeInvalid  = errors.New("--region_size_bytes must be positive")
)

var cfg config

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatalf("regionfsmount: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regionfsmount [flags] mount_point",
		Short: "Mount a regionfs image as a local FUSE file system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.Unmarshal(&cfg); err != nil {
				return err
			}
			cfg.MountPoint = args[0]
			if err := validateConfig(&cfg); err != nil {
				return err
			}
			return run(&cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BackingFile, "backing_file", "", "Path to the file backing the region; empty for an anonymous region")
	flags.Int64Var(&cfg.RegionSizeBytes, "region_size_bytes", 64<<20, "Size in bytes of the region to format/mount")
	flags.BoolVar(&cfg.ReadOnly, "read_only", false, "Mount read-only")
	flags.BoolVar(&cfg.Debug, "debug", false, "Enable FUSE debug logging")
	flags.BoolVar(&cfg.CheckInvariants, "check_invariants", false, "Walk and verify region invariants after every mutating op (slow; for debugging)")
	flags.StringVar(&cfg.MetricsAddr, "metrics_addr", "", "Address to serve Prometheus metrics on; empty to disable")
	flags.BoolVar(&cfg.Foreground, "foreground", false, "Run in the foreground instead of daemonizing")

	viper.SetEnvPrefix("REGIONFSMOUNT")
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		log.Fatalf("BindPFlags: %v", err)
	}

	return cmd
}

func run(c *config) error {
	if !c.Foreground {
		return daemonizeAndRun(c)
	}

	region, err := openRegion(c.BackingFile, c.RegionSizeBytes)
	if err != nil {
		return fmt.Errorf("openRegion: %w", err)
	}
	defer region.close()

	fs := regionfs.NewFS(timeutil.RealClock())
	adapter := newRegionFileSystem(fs, region.data, uint32(os.Getuid()), uint32(os.Getgid()), c.CheckInvariants)
	server := fuseutil.NewFileSystemServer(adapter)

	mountCfg := &fuse.MountConfig{
		ReadOnly: c.ReadOnly,
	}
	if c.Debug {
		mountCfg.DebugLogger = log.New(os.Stderr, "fuse: ", 0)
	}

	mfs, err := fuse.Mount(c.MountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("Mount: %w", err)
	}

	if c.MetricsAddr != "" {
		serveMetrics(c.MetricsAddr)
	}

	// A per-mount session id, recorded in a sidecar next to the backing file
	// (anonymous regions get an id but no sidecar).
	sessionID := uuid.New().String()
	if c.BackingFile != "" {
		sidecar := c.BackingFile + ".session"
		if err := renameio.WriteFile(sidecar, []byte(sessionID+"\n"), 0600); err != nil {
			log.Printf("warning: writing session sidecar %s: %v", sidecar, err)
		}
	}

	if err := daemonize.SignalOutcome(nil); err != nil {
		log.Printf("warning: SignalOutcome: %v", err)
	}

	return mfs.Join(context.Background())
}

// daemonizeAndRun re-execs this binary with --foreground in a child process
// and waits for it to signal readiness, mirroring legacy_main.go's
// daemonize.Run/SignalOutcome handshake.
func daemonizeAndRun(c *config) error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("Executable: %w", err)
	}

	args := append(os.Args[1:], "--foreground")
	env := os.Environ()

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	return nil
}
