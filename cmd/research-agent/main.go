// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command research-agent is the CLI for the research-agent orchestrator.
//
// Usage:
//
//	research-agent serve --config config.yaml
//	research-agent submit --server http://localhost:8080 "what is the capital of France?"
//	research-agent status --server http://localhost:8080 <job-id>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve  ServeCmd  `cmd:"" help:"Run the job queue, executor pool, and HTTP/SSE server."`
	Submit SubmitCmd `cmd:"" help:"Submit a research job to a running server."`
	Status StatusCmd `cmd:"" help:"Fetch a job's current status."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli, kong.Name("research-agent"), kong.UsageOnError())

	level, err := parseLevel(cli.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	initLogger(level, cli.LogFormat)

	runCtx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()
	defer cancel()

	if err := ctx.Run(runCtx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
