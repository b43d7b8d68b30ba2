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
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/yugabyte/yb-anonymizer/src/anonconfig"
	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/pipeline"
	"github.com/yugabyte/yb-anonymizer/src/utils"
)

var (
	configPath     string
	reportFilePath string
	seed           uint64
	disablePb      utils.BoolStr
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Anonymize a dump file using a saved strategy configuration.",
	Long: `Run streams the dump through the anonymization pipeline: CREATE TABLE statements
register schemas, INSERT and COPY rows are rewritten per the configured
strategies, and everything else passes through byte for byte. Output is written
in input order and always ends at a statement boundary.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateInputFileFlag()
		if outputPath == "" {
			utils.ErrExitWithCode(errs.ExitCodeConfigError, `ERROR: required flag "output" not set`)
		}
		if configPath == "" {
			utils.ErrExitWithCode(errs.ExitCodeConfigError, `ERROR: required flag "config" not set`)
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		plan, err := anonconfig.Load(configPath)
		if err != nil {
			utils.ErrExitWithCode(errs.ExitCode(err), "load anonymization config %q: %v", configPath, err)
		}

		in, err := os.Open(inputPath)
		if err != nil {
			utils.ErrExitWithCode(errs.ExitCodeIoError, "open input file: %v", err)
		}
		defer in.Close()
		stat, err := in.Stat()
		if err != nil {
			utils.ErrExitWithCode(errs.ExitCodeIoError, "stat input file %q: %v", inputPath, err)
		}

		anonymizeDump(cmd.Context(), in, stat.Size(), plan, resolveSeed(cmd))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"path for the anonymized dump")

	runCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"path of the anonymization config produced by scan")

	runCmd.Flags().Uint64Var(&seed, "seed", anonymizer.DefaultSeed,
		"seed for the deterministic fake values; the same seed reproduces the same output")

	runCmd.Flags().StringVar(&reportFilePath, "report-file", "",
		"write a JSON run report (run id, seed, per-table row counts, warnings) to this file")

	BoolVar(runCmd.Flags(), &disablePb, "disable-pb", false,
		"disable the progress bar during anonymization (default false)")
}

// resolveSeed prefers an explicit --seed flag, then YB_ANONYMIZER_SEED or the
// tool config file, then the fixed default.
func resolveSeed(cmd *cobra.Command) uint64 {
	if f := cmd.Flag("seed"); f != nil && f.Changed {
		return seed
	}
	if viper.IsSet("seed") {
		return viper.GetUint64("seed")
	}
	return anonymizer.DefaultSeed
}

// anonymizeDump is the transform pass shared by run and the root command. The
// input reader must be positioned at the start of the dump. It prints the run
// summary, writes the optional report, and exits the process on failure.
func anonymizeDump(ctx context.Context, in *os.File, inputSize int64, plan *anonymizer.StrategyAssignment, seedValue uint64) {
	confirmOverwrite(outputPath)
	lockOutputFile(outputPath)

	out, err := os.Create(outputPath)
	if err != nil {
		utils.ErrExitWithCode(errs.ExitCodeIoError, "create output file %q: %v", outputPath, err)
	}

	log.Infof("resolved anonymization plan: %s", spew.Sdump(plan))
	pb := newProgressBar(inputSize, filepath.Base(inputPath), bool(disablePb))
	res, runErr := pipeline.Run(ctx, in, out, pipeline.Options{
		Seed:       seedValue,
		Assignment: plan,
		OutputName: outputPath,
		Progress:   pb.Update,
	})
	pb.Done(runErr == nil)
	if closeErr := out.Close(); runErr == nil && closeErr != nil {
		runErr = errs.NewIoError("close", outputPath, closeErr)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		color.Red("Anonymization failed: %s ❌", runErr)
		log.Errorf("anonymization failed: %v", runErr)
		atexit.Exit(errs.ExitCode(runErr))
	}

	printRunSummary(res, runErr != nil)
	writeRunReport(res)
	if runErr != nil {
		atexit.Exit(errs.ExitCodeDataError)
	}
}

func confirmOverwrite(path string) {
	if !utils.FileOrFolderExists(path) {
		return
	}
	if !utils.AskPrompt(fmt.Sprintf("Output file %s already exists. Overwrite it", path)) {
		utils.ErrExit("Aborting: output file %s already exists", path)
	}
}

func printRunSummary(res *pipeline.Result, interrupted bool) {
	if interrupted {
		utils.PrintAndLog("Anonymization interrupted. The output ends at a statement boundary and is valid but incomplete SQL.")
	}
	utils.PrintAndLog("Processed %s in %s: %d tables defined, %d data statements, %s rows anonymized.",
		humanize.Bytes(uint64(res.BytesRead)), res.Elapsed.Round(time.Millisecond),
		res.TablesDefined, res.DataStatements, humanize.Comma(res.TotalRows()))

	if len(res.RowsByTable) > 0 {
		table := uitable.New()
		headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
		table.AddRow(headerfmt("TABLE"), headerfmt("ROWS"))
		keys := lo.Keys(res.RowsByTable)
		sort.Strings(keys)
		for _, key := range keys {
			table.AddRow(key, humanize.Comma(res.RowsByTable[key]))
		}
		fmt.Print("\n")
		fmt.Println(table)
		fmt.Print("\n")
	}

	for _, warning := range res.Warnings {
		color.Yellow("Warning: %s", warning)
	}
	if !interrupted {
		color.Green("Anonymized dump written to %s (%s)", outputPath, humanize.Bytes(uint64(res.BytesWritten)))
	}
}

func writeRunReport(res *pipeline.Result) {
	if reportFilePath == "" {
		return
	}
	if err := pipeline.NewReport(res).WriteFile(reportFilePath); err != nil {
		utils.ErrExitWithCode(errs.ExitCode(err), "write run report: %v", err)
	}
	utils.PrintAndLog("Run report written to %s", reportFilePath)
}

// progressBar renders input-byte progress on stderr. It stays silent when
// disabled or when stderr is not a terminal.
type progressBar struct {
	container *mpb.Progress
	bar       *mpb.Bar
}

func newProgressBar(total int64, name string, disable bool) *progressBar {
	if disable || !term.IsTerminal(int(os.Stderr.Fd())) {
		return &progressBar{}
	}
	pb := &progressBar{container: mpb.New(mpb.WithOutput(os.Stderr))}
	atexit.Register(func() {
		pb.container.Shutdown()
	})
	pb.bar = pb.container.AddBar(total,
		mpb.BarFillerClearOnComplete(),
		mpb.PrependDecorators(
			decor.Name(name),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.NewPercentage("%.2f", decor.WCSyncSpaceR), "completed",
			),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO), "",
			),
		),
	)
	return pb
}

func (pb *progressBar) Update(consumed int64) {
	if pb.bar == nil {
		return
	}
	pb.bar.SetCurrent(consumed)
}

func (pb *progressBar) Done(success bool) {
	if pb.container == nil {
		return
	}
	if success {
		pb.bar.SetTotal(-1, true)
	} else {
		pb.bar.Abort(true)
	}
	pb.container.Wait()
}
