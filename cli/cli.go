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

// Package cli wires the operator-facing commands onto the orchestrator:
// flag parsing, log-level setup and error-to-exit-code mapping.
package cli

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/emlix/rupdate/conf"
	"github.com/emlix/rupdate/internal/blockdevice"
	"github.com/emlix/rupdate/internal/orchestrator"
	"github.com/emlix/rupdate/internal/partconfig"
	"github.com/emlix/rupdate/internal/updateenv"
)

const appDescription = "" +
	"rupdate drives an A/B partition update: flashing a bundle, " +
	"committing or reverting it, and reporting the state the " +
	"bootloader will see on the next boot."

var out io.Writer = os.Stdout

type runOptions struct {
	configFile string
	verbose    bool
	debug      bool
}

func (o *runOptions) globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to rupdate's local config file",
			Value:       "/etc/rupdate.conf",
			Destination: &o.configFile,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "enable info-level logging",
			Destination: &o.verbose,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Aliases:     []string{"d"},
			Usage:       "enable debug-level logging",
			Destination: &o.debug,
		},
	}
}

func (o *runOptions) handleLogFlags() {
	switch {
	case o.debug:
		log.SetLevel(log.DebugLevel)
	case o.verbose:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
}

// App builds the rupdate command-line application.
func App() *cli.App {
	opts := &runOptions{}

	app := cli.NewApp()
	app.Name = "rupdate"
	app.Usage = "A/B firmware update agent"
	app.Description = appDescription
	app.Flags = opts.globalFlags()
	app.Before = func(ctx *cli.Context) error {
		opts.handleLogFlags()
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:  "update",
			Usage: "flash a bundle, from a file or stdin",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "dry", Usage: "validate the bundle but write nothing"},
			},
			ArgsUsage: "[bundle-path]",
			Action: func(ctx *cli.Context) error {
				return cmdUpdate(ctx, opts)
			},
		},
		{
			Name:  "commit",
			Usage: "accept the installed update before the bootloader tests it",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "boot-retries", Value: -1, Usage: "boot attempts to allow (default from config)"},
			},
			Action: func(ctx *cli.Context) error {
				return cmdCommit(ctx, opts)
			},
		},
		{
			Name:  "finish",
			Usage: "confirm the system under test and clear the update cycle",
			Action: func(ctx *cli.Context) error {
				return cmdFinish(ctx, opts)
			},
		},
		{
			Name:  "revert",
			Usage: "cancel a pending update or stop a testing countdown",
			Action: func(ctx *cli.Context) error {
				return cmdRevert(ctx, opts)
			},
		},
		{
			Name:  "rollback",
			Usage: "fall back to the previous system from Normal",
			Action: func(ctx *cli.Context) error {
				return cmdRollback(ctx, opts)
			},
		},
		{
			Name:  "state",
			Usage: "print the current lifecycle state",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "raw", Usage: "print only the bare state name"},
			},
			Action: func(ctx *cli.Context) error {
				return cmdState(ctx, opts)
			},
		},
		{
			Name:  "env",
			Usage: "hex-dump the on-device update environment",
			Action: func(ctx *cli.Context) error {
				return cmdEnv(ctx, opts)
			},
		},
	}

	return app
}

// buildOrchestrator loads the partition config, opens the update-env
// device and returns a ready-to-use Orchestrator. The caller is
// responsible for closing the returned file.
func buildOrchestrator(opts *runOptions) (*orchestrator.Orchestrator, *os.File, error) {
	cfg, err := conf.Load(opts.configFile)
	if err != nil {
		return nil, nil, err
	}

	partConfigPath := cfg.PartitionConfigFile
	if partConfigPath == "" {
		partConfigPath = conf.PartitionConfigPath()
	}
	partCfg, err := partconfig.Load(partConfigPath)
	if err != nil {
		return nil, nil, err
	}

	devPath := cfg.UpdateDevice
	if devPath == "" {
		_, part, err := partCfg.FindUpdatePartition()
		if err != nil {
			return nil, nil, err
		}
		devPath = "/dev/" + part.Device
	}
	f, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening update environment device %q", devPath)
	}

	env, err := updateenv.Open(f, partCfg)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	return &orchestrator.Orchestrator{
		Config: partCfg,
		Env:    env,
		Opener: blockdevice.Opener{},
	}, f, nil
}

func cmdUpdate(ctx *cli.Context, opts *runOptions) error {
	o, f, err := buildOrchestrator(opts)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader
	if path := ctx.Args().First(); path != "" {
		bf, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "opening bundle %q", path)
		}
		defer bf.Close()
		r = bf
	} else {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("update: refusing to read a bundle interactively from a terminal, give a path or pipe one in")
		}
		r = os.Stdin
	}

	dry := ctx.Bool("dry")
	quiet := !term.IsTerminal(int(os.Stderr.Fd()))
	manifest, err := o.Update(r, dry, quiet)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "installed bundle version %q (%d images)\n", manifest.Version, len(manifest.Images))
	return nil
}

func cmdCommit(ctx *cli.Context, opts *runOptions) error {
	o, f, err := buildOrchestrator(opts)
	if err != nil {
		return err
	}
	defer f.Close()

	retries := ctx.Int("boot-retries")
	if retries < 0 {
		cfg, err := conf.Load(opts.configFile)
		if err != nil {
			return err
		}
		retries = cfg.DefaultBootRetries
	}
	return o.Commit(retries)
}

func cmdFinish(ctx *cli.Context, opts *runOptions) error {
	o, f, err := buildOrchestrator(opts)
	if err != nil {
		return err
	}
	defer f.Close()
	return o.Finish()
}

func cmdRevert(ctx *cli.Context, opts *runOptions) error {
	o, f, err := buildOrchestrator(opts)
	if err != nil {
		return err
	}
	defer f.Close()
	return o.Revert()
}

func cmdRollback(ctx *cli.Context, opts *runOptions) error {
	o, f, err := buildOrchestrator(opts)
	if err != nil {
		return err
	}
	defer f.Close()
	return o.Rollback()
}

func cmdState(ctx *cli.Context, opts *runOptions) error {
	o, f, err := buildOrchestrator(opts)
	if err != nil {
		return err
	}
	defer f.Close()
	return o.PrintState(out, ctx.Bool("raw"))
}

func cmdEnv(ctx *cli.Context, opts *runOptions) error {
	o, f, err := buildOrchestrator(opts)
	if err != nil {
		return err
	}
	defer f.Close()
	return o.PrintEnv(out)
}
