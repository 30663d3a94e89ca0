/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/liveview/internal/buildinfo"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

// Config is the configuration of the liveview CLI. Environment variables provide the defaults,
// command line flags override them.
type Config struct {
	Pipeline string `env:"LIVEVIEW_PIPELINE"`
	Data     string `env:"LIVEVIEW_DATA"`
	Changes  string `env:"LIVEVIEW_CHANGES"`
	Output   string `env:"LIVEVIEW_OUTPUT"  envDefault:"yaml"`
	Explain  string `env:"LIVEVIEW_EXPLAIN"`
	SQLite   string `env:"LIVEVIEW_SQLITE"`
	Table    string `env:"LIVEVIEW_TABLE"   envDefault:"documents"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse env: %s\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Pipeline, "pipeline", cfg.Pipeline, "Pipeline spec file (YAML or JSON).")
	flag.StringVar(&cfg.Data, "data", cfg.Data, "Data file: a map from collection names to lists of documents.")
	flag.StringVar(&cfg.Changes, "changes", cfg.Changes,
		"Optional change file: a list of insert/update/remove operations applied after the initial "+
			"evaluation. The resulting change feed is printed.")
	flag.StringVar(&cfg.Output, "output", cfg.Output, "Output format: yaml or json.")
	flag.StringVar(&cfg.Explain, "explain", cfg.Explain, "Print the plan instead of the result: text, dot or mermaid.")
	flag.StringVar(&cfg.SQLite, "sqlite", cfg.SQLite, "Export the result into the SQLite database at this path.")
	flag.StringVar(&cfg.Table, "table", cfg.Table, "SQLite table name.")
	showVersion := flag.Bool("version", false, "Print version and exit.")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := zap.New(zap.UseFlagOptions(&opts)).WithName("liveview")
	setupLog := logger.WithName("setup")

	buildInfo := buildinfo.New(version, commitHash, buildDate)
	if *showVersion {
		fmt.Println(buildInfo.String())
		return
	}
	setupLog.V(1).Info(fmt.Sprintf("starting %s", buildInfo.String()))

	if cfg.Pipeline == "" || cfg.Data == "" {
		setupLog.Error(fmt.Errorf("both a pipeline and a data file are required"), "invalid arguments")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		setupLog.Error(err, "liveview failed")
		os.Exit(1)
	}
}
