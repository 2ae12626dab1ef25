// Copyright 2024 The Subvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command subvisorctl inspects a running subvisor.  It uses subcommands.
//
// The flags are
//
//	-c <file>	- configuration file, as given to subvisord
//	-a <address>	- landing site address, default from the configuration
//
// Subcommands are
//
//	deployments         - list deployments, as published by the site
//	route <host> ...    - show where the proxy sends a request for host
//	status              - probe every listener and show a table
//	watch               - full screen status, refreshed every second
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/subvisor/subvisor"
	"github.com/subvisor/subvisor/proxy"
	"github.com/subvisor/subvisor/registry"
	"github.com/subvisor/subvisor/site"
	"github.com/subvisor/subvisor/subvisorctl/ui"
	"github.com/subvisor/subvisor/subvisorctl/util"
)

var cfgFile string = ""
var addr string = ""

func usage() {
	log.Fatalf("Usage: %s [-c <config>] [-a <address>] deployments|route|status|watch",
		os.Args[0])
}

func loadRegistry(cfg subvisor.Config) *registry.Registry {
	reg, e := registry.Load(cfg.Registry)
	if e != nil {
		log.Fatalf("Failed: %v", e)
	}
	return reg
}

func main() {
	flag.StringVar(&cfgFile, "c", cfgFile, "configuration file")
	flag.StringVar(&addr, "a", addr, "landing site address")
	flag.Parse()
	log.SetFlags(0)

	cfg, e := subvisor.LoadConfig(cfgFile)
	if e != nil {
		log.Fatalf("Failed: %v", e)
	}
	if addr == "" {
		addr = "http://" + cfg.SiteAddr()
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"status"}
	}

	switch args[0] {
	case "deployments":
		if len(args) != 1 {
			usage()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		infos, e := site.NewClient(nil, addr).Deployments(ctx)
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, d := range infos {
			fmt.Printf("%-24s %-20s %6d %-7s %s\n",
				d.ID, d.Subdomain, d.Port, d.RenderMode, d.URL)
		}

	case "route":
		if len(args) < 2 {
			usage()
		}
		rt := proxy.NewRouter(loadRegistry(cfg), proxy.Options{
			Domain:    cfg.Domain,
			SiteAlias: cfg.SiteAlias,
			SitePort:  cfg.SitePort,
		})
		for _, host := range args[1:] {
			r, e := rt.Resolve(host)
			switch {
			case errors.Is(e, proxy.ErrUnroutableHost):
				fmt.Printf("%-32s 404 %s\n", host, proxy.NotFoundBody)
			case e != nil:
				log.Fatalf("Failed: %v", e)
			case r.Kind == proxy.RouteSite:
				fmt.Printf("%-32s site %s\n", host, r.URL())
			default:
				fmt.Printf("%-32s %s (%s) %s\n", host, r.Subdomain,
					r.Deployment.ID, r.URL())
			}
		}

	case "status":
		if len(args) != 1 {
			usage()
		}
		targets := util.Targets(loadRegistry(cfg), cfg.ProxyPort, cfg.SitePort)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client := &http.Client{Timeout: 2 * time.Second}
		down := 0
		for _, p := range util.CheckAll(ctx, client, targets) {
			detail := fmt.Sprintf("%d", p.Code)
			if p.Err != nil {
				detail = p.Err.Error()
				down++
			}
			fmt.Printf("%-28s %-5s %8s   %s\n", p.Name, util.Status(&p),
				p.Latency.Round(time.Millisecond), detail)
		}
		if down > 0 {
			os.Exit(1)
		}

	case "watch":
		if len(args) != 1 {
			usage()
		}
		targets := util.Targets(loadRegistry(cfg), cfg.ProxyPort, cfg.SitePort)
		app := ui.NewApp(targets, cfg.Registry)
		if e := app.Run(); e != nil {
			log.Fatalf("Failed: %v", e)
		}

	default:
		usage()
	}
}
