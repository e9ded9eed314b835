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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/shadowlure/shadowlure/config"
	"github.com/shadowlure/shadowlure/server"
	"github.com/shadowlure/shadowlure/web"
	cli "gopkg.in/urfave/cli.v1"

	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("shadowlure:cmd")

func start(c *cli.Context) error {
	path := c.GlobalString("config")

	conf, err := config.LoadFile(path)
	if err != nil {
		return cli.NewExitError(color.RedString("Error loading configuration: %s", err.Error()), 1)
	}

	w, err := web.New(web.WithAddress(conf.Control.Address))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	options := []server.OptionFn{
		server.WithConfig(conf),
	}

	if fn, err := server.WithConfigDir(filepath.Dir(path)); err != nil {
		return cli.NewExitError(err.Error(), 1)
	} else {
		options = append(options, fn)
	}

	if v := c.GlobalString("data-dir"); v == "" {
	} else if fn, err := server.WithDataDir(v); err != nil {
		return cli.NewExitError(color.RedString("Error opening data dir: %s", err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	options = append(options,
		server.WithToken(),
		server.WithChannel(w),
	)

	if c.GlobalBool("cpu-profile") {
		options = append(options, server.WithCPUProfiler())
	}

	if c.GlobalBool("mem-profile") {
		options = append(options, server.WithMemoryProfiler())
	}

	srv, err := server.New(options...)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	w.SetProvider(srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := make(chan os.Signal, 1)
	signal.Notify(s, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(s)

	go func() {
		select {
		case sig := <-s:
			log.Infof("Received %s, stopping...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup

	if conf.Control.Address != "" {
		wg.Add(1)

		go func() {
			defer wg.Done()

			// the honeypot keeps running without its control interface
			if err := w.ListenAndServe(ctx); err != nil {
				log.Errorf("Error starting control interface on %s: %s", conf.Control.Address, err.Error())
			}
		}()
	}

	err = srv.Run(ctx)

	cancel()
	wg.Wait()

	if errors.Is(err, server.ErrNothingToDo) {
		fmt.Println(color.YellowString("%s", err.Error()))
		return nil
	} else if err != nil {
		return cli.NewExitError(color.RedString("Error: %s", err.Error()), 1)
	}

	return nil
}

func status(c *cli.Context) error {
	address := config.DefaultControlAddress

	if conf, err := config.LoadFile(c.GlobalString("config")); err == nil {
		address = conf.Control.Address
	}

	if address == "" {
		return cli.NewExitError(color.RedString("Control interface disabled in configuration"), 1)
	}

	st, err := web.QueryStatus(context.Background(), address)
	if err != nil {
		log.Debugf("Error querying %s: %s", address, err.Error())
		return cli.NewExitError(color.RedString("shadowlure is not running on %s", address), 1)
	}

	fmt.Fprintln(c.App.Writer, color.YellowString("shadowlure %s (%s) running since %s", st.Version, st.Token, st.Started.Format("2006-01-02 15:04:05")))

	for _, s := range st.Services {
		line := fmt.Sprintf("%-12s %-6s %5d  %-11s sessions=%d accepted=%d", s.Name, s.Type, s.Port, s.State, s.ActiveSessions, s.Accepted)

		switch s.State {
		case server.StateRunning:
			fmt.Fprintln(c.App.Writer, color.GreenString("%s", line))
		case server.StateFailed:
			fmt.Fprintln(c.App.Writer, color.RedString("%s error=%s", line, s.Error))
		default:
			fmt.Fprintln(c.App.Writer, line)
		}
	}

	return nil
}

func copyConfig(c *cli.Context) error {
	written, err := config.WriteDefaults(c.GlobalString("config"))
	for _, p := range written {
		fmt.Fprintln(c.App.Writer, color.GreenString("Written %s", p))
	}

	if err != nil {
		return cli.NewExitError(color.RedString("Error: %s", err.Error()), 1)
	}

	return nil
}
