/*
Copyright (c) YugaByte, Inc.

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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nightlyone/lockfile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"

	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/pipeline"
	"github.com/yugabyte/yb-anonymizer/src/utils"
)

var (
	inputPath       string
	outputPath      string
	logDir          string
	logLevel        string
	verboseMode     bool
	interactiveMode bool
	lockFile        lockfile.Lockfile
	outputLocked    bool
)

var rootCmd = &cobra.Command{
	Use:   "yb-anonymizer",
	Short: "A CLI tool to replace PII in PostgreSQL dump files with deterministic fake data.",
	Long: `yb-anonymizer streams a plain-format PostgreSQL dump, classifies columns that look
like PII (emails, phone numbers, names, secrets) and rewrites their values with
deterministic fakes, so the dump can be shared for support or reproduction without
leaking user data. The same input and seed always produce the same output, and
values repeated across tables keep referential integrity.

Run with just --input for a scan-confirm-anonymize flow, or use the scan and run
subcommands to review and edit the strategy configuration between the two passes.`,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Use == "version" {
			return
		}
		if cmd == rootCmd && inputPath == "" {
			// Bare invocation only prints help; no logs directory for that.
			return
		}
		if lf := cmd.Flag("log-level"); lf != nil && !lf.Changed && viper.IsSet("log-level") {
			logLevel = viper.GetString("log-level")
		}
		InitLogging(logDir, commandName(cmd))
	},

	Run: func(cmd *cobra.Command, args []string) {
		if inputPath == "" {
			cmd.Help()
			os.Exit(0)
		}
		smartRun(cmd)
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		unlockOutputFile()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	registerCommonGlobalFlags(rootCmd)
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"path for the anonymized dump (default: <input-stem>_anonymized.sql next to the input)")
	rootCmd.Flags().BoolVar(&interactiveMode, "interactive", false,
		"review and adjust the proposed strategy for every column before anonymizing")
}

func registerCommonGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "",
		"path of the PostgreSQL dump file to read")

	cmd.PersistentFlags().BoolVar(&verboseMode, "verbose", false,
		"enable verbose mode for the console output")

	cmd.PersistentFlags().StringVar(&logDir, "log-dir", ".",
		"directory under which the logs directory is created")

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (trace, debug, info, warn, error, fatal, panic)")

	cmd.PersistentFlags().BoolVarP(&utils.DoNotPrompt, "yes", "y", false,
		"assume answer as yes for all questions during anonymization (default false)")
}

// BoolVar registers an explicit-value boolean flag backed by utils.BoolStr,
// so both the bare --flag and the --flag=true/false forms work.
func BoolVar(flagSet *pflag.FlagSet, p *utils.BoolStr, name string, value bool, usage string) {
	*p = utils.BoolStr(value)
	flagSet.Var(p, name, fmt.Sprintf("%s; accepted values (true, false, yes, no, 0, 1)", usage))
	flagSet.Lookup(name).NoOptDefVal = "true"
}

// smartRun is the scan-confirm-anonymize flow behind the bare root command:
// one classification pass, an operator checkpoint, then the transform pass
// reusing the in-memory plan.
func smartRun(cmd *cobra.Command) {
	validateInputFileFlag()
	if outputPath == "" {
		outputPath = defaultOutputPath(inputPath)
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

	utils.PrintAndLog("Scanning %s for table schemas and PII columns...", inputPath)
	scanRes, err := pipeline.Scan(cmd.Context(), in, pipeline.ScanOptions{})
	if err != nil {
		utils.ErrExitWithCode(errs.ExitCode(err), "scan %q: %v", inputPath, err)
	}
	if len(scanRes.Tables) == 0 {
		utils.PrintAndLog("No table data found in %s; nothing to anonymize.", inputPath)
		return
	}

	displayPlan(scanRes)
	plan := scanRes.Assignment()
	if interactiveMode {
		reviewPlan(scanRes, plan)
	}
	if !utils.AskPrompt("Anonymize", inputPath, "into", outputPath, "with this plan") {
		utils.PrintAndLog("Aborting.")
		return
	}

	// The transform is a second pass over the same file.
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		utils.ErrExitWithCode(errs.ExitCodeIoError,
			"cannot rewind %q for the transform pass (use the scan and run commands for non-seekable input): %v",
			inputPath, err)
	}
	anonymizeDump(cmd.Context(), in, stat.Size(), plan, resolveSeed(cmd))
}

func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)
	if ext == "" {
		ext = ".sql"
	}
	return stem + "_anonymized" + ext
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Find home directory.
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	// Search config in home directory with name ".yb-anonymizer" (without extension).
	viper.AddConfigPath(home)
	viper.SetConfigType("yaml")
	viper.SetConfigName(".yb-anonymizer")

	viper.SetEnvPrefix("YB_ANONYMIZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func commandName(cmd *cobra.Command) string {
	if cmd == rootCmd {
		return "smart-run"
	}
	return cmd.Use
}

func validateInputFileFlag() {
	if inputPath == "" {
		utils.ErrExitWithCode(errs.ExitCodeConfigError, `ERROR: required flag "input" not set`)
	}
	if !utils.FileOrFolderExists(inputPath) {
		utils.ErrExitWithCode(errs.ExitCodeConfigError, "input file %q does not exist", inputPath)
	}
}

func lockOutputFile(path string) {
	lockFilePath, err := filepath.Abs(path + ".lck")
	if err != nil {
		utils.ErrExit("Failed to get absolute path for lockfile %q: %v", path+".lck", err)
	}
	createLock(lockFilePath)
	// ErrExit terminates through atexit, so the lock is released there too.
	atexit.Register(unlockOutputFile)
}

func createLock(lockFileName string) {
	var err error
	lockFile, err = lockfile.New(lockFileName)
	if err != nil {
		utils.ErrExit("Failed to create lockfile %q: %v", lockFileName, err)
	}

	err = lockFile.TryLock()
	if err == nil {
		outputLocked = true
	} else if err == lockfile.ErrBusy {
		utils.ErrExit("Another instance of yb-anonymizer is already writing to %s", outputPath)
	} else {
		utils.ErrExit("Unable to lock the output file: %v", err)
	}
}

func unlockOutputFile() {
	if !outputLocked {
		return
	}
	outputLocked = false
	err := lockFile.Unlock()
	if err != nil {
		log.Warnf("Unable to unlock %q: %v", lockFile, err)
	}
}
