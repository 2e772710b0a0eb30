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

package main

// config holds every knob regionfsmount accepts, whether set by flag or by
// a REGIONFSMOUNT_-prefixed environment variable; no config file is read.
// Mirrors gcsfuse/cfg.Config in spirit: one flat struct that viper fills
// in, which the rest of the program reads without caring where a value came
// from. MountPoint is the command's positional argument.
type config struct {
	MountPoint      string `mapstructure:"mount_point"`
	BackingFile     string `mapstructure:"backing_file"`
	RegionSizeBytes int64  `mapstructure:"region_size_bytes"`
	ReadOnly        bool   `mapstructure:"read_only"`
	Debug           bool   `mapstructure:"debug"`
	CheckInvariants bool   `mapstructure:"check_invariants"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
	Foreground      bool   `mapstructure:"foreground"`
}

func validateConfig(c *config) error {
	if c.MountPoint == "" {
		return errMountPointRequired
	}
	if c.RegionSizeBytes <= 0 {
		return errRegionSizeInvalid
	}
	return nil
}
