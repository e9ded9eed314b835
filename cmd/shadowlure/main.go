// Copyright 2016-2019 DutchSec (https://dutchsec.com/)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/shadowlure/shadowlure/cmd"
	cli "gopkg.in/urfave/cli.v1"
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Value: "config.toml",
		Usage: "Load configuration from `FILE`",
	},
	cli.StringFlag{
		Name:  "data-dir",
		Value: "~/.shadowlure",
		Usage: "Store host keys and the sensor token in `DIR`",
	},
	cli.BoolFlag{Name: "cpu-profile", Usage: "Enable cpu profiler"},
	cli.BoolFlag{Name: "mem-profile", Usage: "Enable memory profiler"},
}

func main() {
	app := cli.NewApp()
	app.Name = "shadowlure"
	app.Author = ""
	app.Usage = "shadowlure"
	app.Version = cmd.Version
	app.Flags = globalFlags
	app.Description = `shadowlure: low interaction ssh, ftp and http honeypot.`
	app.CustomAppHelpTemplate = cmd.HelpTemplate
	app.Commands = []cli.Command{
		{
			Name:   "start",
			Usage:  "Start the enabled services",
			Action: start,
		},
		{
			Name:   "status",
			Usage:  "Show the state of the running services",
			Action: status,
		},
		{
			Name:   "copyconfig",
			Usage:  "Write the default configuration and login page",
			Action: copyConfig,
		},
		{
			Name:   "version",
			Usage:  "Show the version",
			Action: cmd.VersionAction,
		},
	}

	app.Action = start

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}
