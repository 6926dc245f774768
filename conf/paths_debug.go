// Copyright 2019 Northern.tech AS
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

//go:build debug
// +build debug

package conf

import "os"

// partConfigEnvVar overrides the partition config path, debug builds only.
const partConfigEnvVar = "RUPDATE_PART_CONFIG"

// DefaultPartitionConfigFile is the partition config path used when
// RUPDATE_PART_CONFIG is unset, the same one release builds use.
const DefaultPartitionConfigFile = "/etc/partitions.json"

// DefaultLogFile is the default value of Config.LogFile.
const DefaultLogFile = "/var/log/rupdate.log"

// PartitionConfigPath returns RUPDATE_PART_CONFIG when set, otherwise the
// same default release builds use.
func PartitionConfigPath() string {
	if p := os.Getenv(partConfigEnvVar); p != "" {
		return p
	}
	return DefaultPartitionConfigFile
}
