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
package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppHasExpectedCommands(t *testing.T) {
	app := App()

	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{
		"update", "commit", "finish", "revert", "rollback", "state", "env",
	}, names)
}

func TestAppUnknownCommandFails(t *testing.T) {
	app := App()
	err := app.Run([]string{"rupdate", "bogus-command"})
	assert.Error(t, err)
}

func TestHandleLogFlagsDoesNotPanic(t *testing.T) {
	cases := []struct {
		name           string
		verbose, debug bool
	}{
		{"default", false, false},
		{"verbose", true, false},
		{"debug", false, true},
		{"debug wins over verbose", true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opts := &runOptions{verbose: c.verbose, debug: c.debug}
			assert.NotPanics(t, func() { opts.handleLogFlags() })
		})
	}
}
