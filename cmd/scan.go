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
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/yugabyte/yb-anonymizer/src/anonconfig"
	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/piiscan"
	"github.com/yugabyte/yb-anonymizer/src/pipeline"
	"github.com/yugabyte/yb-anonymizer/src/utils"
)

var (
	outputConfigPath string
	sampleRows       int
)

const scanPlanMsg = "Proposed Anonymization Plan\n"

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a dump file and propose an anonymization strategy for every column.",
	Long: `Scan streams the dump once without writing any data: it collects CREATE TABLE
schemas (reconstructing column lists from INSERT/COPY statements for tables that
lack one), samples a few rows per table and proposes a per-column strategy.
The resulting YAML configuration goes to --output-config, or to stdout, and can
be edited before feeding it to the run command.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateInputFileFlag()
	},

	Run: func(cmd *cobra.Command, args []string) {
		in, err := os.Open(inputPath)
		if err != nil {
			utils.ErrExitWithCode(errs.ExitCodeIoError, "open input file: %v", err)
		}
		defer in.Close()

		scanRes, err := pipeline.Scan(cmd.Context(), in, pipeline.ScanOptions{SampleLimit: sampleRows})
		if err != nil {
			utils.ErrExitWithCode(errs.ExitCode(err), "scan %q: %v", inputPath, err)
		}

		displayPlan(scanRes)
		plan := scanRes.Assignment()
		if interactiveMode {
			reviewPlan(scanRes, plan)
		}
		writeConfig(plan)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&outputConfigPath, "output-config", "",
		"write the proposed anonymization config to this file (default: stdout)")

	scanCmd.Flags().IntVar(&sampleRows, "sample-rows", piiscan.DefaultSampleLimit,
		"number of rows to sample per table for the structural PII checks")

	scanCmd.Flags().BoolVar(&interactiveMode, "interactive", false,
		"review and adjust the proposed strategy for every column")
}

func displayPlan(scanRes *pipeline.ScanResult) {
	utils.PrintAndLog("Scanned %s of input: %d tables, %d data statements.",
		humanize.Bytes(uint64(scanRes.BytesRead)), len(scanRes.Tables), scanRes.DataStatements)
	if len(scanRes.Tables) == 0 {
		return
	}

	color.Cyan(scanPlanMsg)
	table := uitable.New()
	table.MaxColWidth = 70
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	table.AddRow(headerfmt("TABLE"), headerfmt("COLUMN"), headerfmt("STRATEGY"),
		headerfmt("CONFIDENCE"), headerfmt("REASON"))
	for _, name := range scanRes.TableNames() {
		for _, proposal := range scanRes.Tables[name].Proposals {
			table.AddRow(name, proposal.Column, proposal.Strategy.String(),
				string(proposal.Confidence), proposal.Reason)
		}
	}
	fmt.Print("\n")
	fmt.Println(table)
	fmt.Print("\n")
}

func writeConfig(plan *anonymizer.StrategyAssignment) {
	if outputConfigPath == "" {
		data, err := anonconfig.Marshal(plan)
		if err != nil {
			utils.ErrExit("marshal anonymization config: %v", err)
		}
		fmt.Print(string(data))
		return
	}

	if err := anonconfig.Save(outputConfigPath, plan); err != nil {
		utils.ErrExitWithCode(errs.ExitCode(err), "save anonymization config: %v", err)
	}
	utils.PrintAndLog("Anonymization config written to %s", outputConfigPath)
	fmt.Printf("Review it, then anonymize the dump with:\n"+
		color.CyanString("yb-anonymizer run --input %s --config %s --output <anonymized.sql>\n",
			inputPath, outputConfigPath))
}
