// Copyright 2021 Northern.tech AS
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

// Command partcfgimg renders the partition-config mirror image ("EBPC")
// that the bootloader reads, offline from partitions.json — it is run at
// board provisioning time, not by the agent itself.
package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/emlix/rupdate/internal/model"
	"github.com/emlix/rupdate/internal/partconfig"
	"github.com/emlix/rupdate/internal/partenv"
)

func main() {
	log.SetFormatter(&log.TextFormatter{})

	app := cli.NewApp()
	app.Name = "partcfgimg"
	app.Usage = "render the bootloader-visible partition-config mirror image"
	app.Commands = []*cli.Command{
		{
			Name:  "print",
			Usage: "hex-dump the mirror image that would be generated",
			Flags: commonFlags(),
			Action: func(ctx *cli.Context) error {
				img, err := buildImage(ctx)
				if err != nil {
					return err
				}
				raw, err := img.MarshalBinary()
				if err != nil {
					return err
				}
				fmt.Print(model.HexDump(raw))
				return nil
			},
		},
		{
			Name:  "image",
			Usage: "write the mirror image to a file",
			Flags: append(commonFlags(), &cli.StringFlag{
				Name:  "output",
				Value: "partition_config.img",
				Usage: "output file path",
			}),
			Action: func(ctx *cli.Context) error {
				img, err := buildImage(ctx)
				if err != nil {
					return err
				}
				raw, err := img.MarshalBinary()
				if err != nil {
					return err
				}
				return os.WriteFile(ctx.String("output"), raw, 0644)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "part-config", Value: "partitions.json", Usage: "path to partitions.json"},
		&cli.StringFlag{Name: "sets", Required: true, Usage: "comma-separated list of partition set names to include"},
	}
}

func buildImage(ctx *cli.Context) (*partenv.Image, error) {
	cfg, err := partconfig.Load(ctx.String("part-config"))
	if err != nil {
		return nil, err
	}
	names := strings.Split(ctx.String("sets"), ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return partenv.FromConfig(cfg, names)
}
