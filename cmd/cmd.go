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

// Package cmd holds the version information and help layout shared by the
// shadowlure commands.
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	cli "gopkg.in/urfave/cli.v1"
)

// Version and ShortCommitID are set at build time with -ldflags.
var (
	Version       = "0.1"
	ShortCommitID = "dev"
)

// HelpTemplate is the application help of the commands.
var HelpTemplate = `NAME:
{{.Name}} - {{.Usage}}

DESCRIPTION:
{{.Description}}

USAGE:
{{.Name}} {{if .Flags}}[flags] {{end}}command{{if .Flags}}{{end}} [arguments...]

COMMANDS:
{{range .Commands}}{{join .Names ", "}}{{ "\t" }}{{.Usage}}
{{end}}{{if .Flags}}
FLAGS:
{{range .Flags}}{{.}}
{{end}}{{end}}
VERSION:
` + Version +
	`{{ "\n"}}`

// VersionAction defines the action called when seeking the Version detail.
func VersionAction(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, color.YellowString("shadowlure %s (%s): low interaction honeypot.", Version, ShortCommitID))
	return nil
}
