/*
Copyright (c) YugabyteDB, Inc.

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
	"os"
	"os/signal"
	"syscall"

	"github.com/tebeka/atexit"
	"github.com/yugabyte/yb-anonymizer/cmd"
	"github.com/yugabyte/yb-anonymizer/src/utils"
)

func main() {
	ctx := registerSignalHandlers()
	cmd.Execute(ctx)
}

// registerSignalHandlers cancels the returned context on the first signal so
// the pipeline can close any open statement and flush before exiting; a
// second signal exits immediately.
func registerSignalHandlers() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		utils.PrintAndLog("Received signal %s. Finishing the current statement before exiting...", sig)
		cancel()
		sig = <-sigs
		utils.PrintAndLog("Received signal %s again. Exiting immediately...", sig)
		atexit.Exit(1)
	}()
	return ctx
}
