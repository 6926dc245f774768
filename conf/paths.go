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

//go:build !debug
// +build !debug

package conf

// DefaultPartitionConfigFile is the fixed, release-build location of
// partitions.json. Release builds never honor RUPDATE_PART_CONFIG — only
// debug builds do, so a stray environment variable can never redirect a
// production device onto the wrong partition layout.
const DefaultPartitionConfigFile = "/etc/partitions.json"

// PartitionConfigPath returns the partition config path to use.
func PartitionConfigPath() string {
	return DefaultPartitionConfigFile
}

// DefaultLogFile is the default value of Config.LogFile. No part of the
// agent opens this file; log output goes to stderr only.
const DefaultLogFile = "/var/log/rupdate.log"
