/*
Copyright 2025 The FBDAM Authors

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

// Command fbdam compiles food-bank allocation scenarios into MILP models,
// solves them and reports the resulting allocation KPIs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/foodbank-alloc/fbdam/internal/config"
	"github.com/foodbank-alloc/fbdam/internal/loader"
	"github.com/foodbank-alloc/fbdam/internal/runstore"
	scenarioconfig "github.com/foodbank-alloc/fbdam/pkg/config"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func execute(ctx context.Context, args []string) error {
	a := newApp(os.Stdout, os.Stderr)
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

// exitCode maps configuration and input errors to 2, every other error to 1.
// Infeasible scenarios are not errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, scenarioconfig.ErrConfig),
		errors.Is(err, config.ErrSettings),
		errors.Is(err, loader.ErrDataset),
		errors.Is(err, errUsage),
		errors.Is(err, runstore.ErrNotFound),
		errors.Is(err, fs.ErrNotExist):
		return exitConfig
	default:
		return exitFailed
	}
}
