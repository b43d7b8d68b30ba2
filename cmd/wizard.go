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
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/piiscan"
	"github.com/yugabyte/yb-anonymizer/src/pipeline"
	"github.com/yugabyte/yb-anonymizer/src/utils"
)

// wizardStrategies is the menu order; fixed comes last because it needs a
// follow-up prompt for the replacement value.
var wizardStrategies = []string{
	anonymizer.TagKeep,
	anonymizer.TagMask,
	anonymizer.TagEmail,
	anonymizer.TagPhone,
	anonymizer.TagFirstName,
	anonymizer.TagLastName,
	anonymizer.TagFullName,
	anonymizer.TagFixed,
}

// reviewPlan walks every scanned column, letting the operator accept the
// proposed strategy with ENTER or override it from a numbered menu.
func reviewPlan(scanRes *pipeline.ScanResult, plan *anonymizer.StrategyAssignment) {
	reader := bufio.NewReader(os.Stdin)
	for _, tableName := range scanRes.TableNames() {
		entry := scanRes.Tables[tableName]
		color.Cyan("\nTable %s (%d columns, %d rows sampled)\n", tableName, len(entry.Proposals), entry.Rows)
		for _, proposal := range entry.Proposals {
			strategy := promptStrategy(reader, tableName, proposal)
			plan.Set(tableName, proposal.Column, strategy)
			if strategy != proposal.Strategy {
				log.Infof("operator overrode %s.%s: %s instead of proposed %s",
					tableName, proposal.Column, strategy, proposal.Strategy)
			}
		}
	}
}

func promptStrategy(reader *bufio.Reader, tableName string, proposal piiscan.ColumnProposal) anonymizer.Strategy {
	fmt.Printf("\n%s.%s\n", tableName, proposal.Column)
	fmt.Printf("  proposed: %s (%s confidence; %s)\n", proposal.Strategy, proposal.Confidence, proposal.Reason)
	for i, tag := range wizardStrategies {
		fmt.Printf("  [%d] %s\n", i+1, tag)
	}
	for {
		fmt.Printf("ENTER to accept the proposal, or a strategy number [1-%d]: ", len(wizardStrategies))
		line, err := utils.Readline(reader)
		if err != nil {
			utils.ErrExit("read strategy choice: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return proposal.Strategy
		}
		choice, err := strconv.Atoi(line)
		if err != nil || choice < 1 || choice > len(wizardStrategies) {
			fmt.Printf("Invalid choice %q.\n", line)
			continue
		}
		tag := wizardStrategies[choice-1]
		if tag == anonymizer.TagFixed {
			fmt.Printf("Replacement value for every %s.%s: ", tableName, proposal.Column)
			payload, err := utils.Readline(reader)
			if err != nil {
				utils.ErrExit("read fixed replacement value: %v", err)
			}
			return anonymizer.NewFixed(payload)
		}
		strategy, _ := anonymizer.ParseTag(tag)
		return strategy
	}
}
