// Copyright 2020 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
package conf

import (
	"encoding/json"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config holds the agent's optional local overrides. None of these fields
// are required: every one has a workable default, since the partition
// config (partitions.json) — not this file — is the authoritative
// description of the hardware.
type Config struct {
	// PartitionConfigFile overrides conf.PartitionConfigPath when set.
	PartitionConfigFile string `json:"partition_config_file,omitempty"`
	// UpdateDevice overrides the device node resolved from the update_env
	// partition set, useful when testing against a loopback device.
	UpdateDevice string `json:"update_device,omitempty"`
	// DefaultBootRetries is used by "commit" when --boot-retries is not
	// given on the command line.
	DefaultBootRetries int `json:"default_boot_retries,omitempty"`
	// LogFile overrides conf.DefaultLogFile. It is loaded and saved, but no
	// part of the agent opens it; log output goes to stderr only.
	LogFile string `json:"log_file,omitempty"`
}

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	return &Config{
		DefaultBootRetries: 3,
		LogFile:            DefaultLogFile,
	}
}

// Load reads a JSON config file at path, returning defaults unchanged if
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Debugf("conf: no config file at %s, using defaults", path)
		return cfg, nil
	}

	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "conf: reading %s", path)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		if _, ok := err.(*json.SyntaxError); ok {
			return nil, errors.Wrapf(err, "conf: parsing %s", path)
		}
		return nil, errors.Wrapf(err, "conf: decoding %s", path)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(cfg *Config, path string) error {
	raw, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return errors.Wrap(err, "conf: encoding config")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "conf: opening config file")
	}
	defer f.Close()
	if _, err := f.Write(raw); err != nil {
		return errors.Wrap(err, "conf: writing config file")
	}
	return nil
}
