// Package anonconfig binds the YAML anonymization plan to the strategy
// model. The file format:
//
//	tables:
//	  public.users:
//	    columns:
//	      id: keep
//	      email: email
//	      password:
//	        fixed: REDACTED_SECRET
//
// Column values are either a plain strategy tag or the single map form
// carrying the fixed-string payload.
package anonconfig

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/yugabyte/yb-anonymizer/src/anonymizer"
	"github.com/yugabyte/yb-anonymizer/src/errs"
)

type yamlConfig struct {
	Tables map[string]yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Columns map[string]interface{} `yaml:"columns"`
}

// Load reads and validates a plan file.
func Load(path string) (*anonymizer.StrategyAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewIoError("read", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML into a StrategyAssignment. Unknown strategy tags
// and malformed fixed payloads are ConfigErrors carrying the YAML path.
func Parse(data []byte) (*anonymizer.StrategyAssignment, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.NewConfigError("", "not valid YAML: %v", err)
	}
	assignment := anonymizer.NewStrategyAssignment()
	for table, tableCfg := range cfg.Tables {
		for column, raw := range tableCfg.Columns {
			location := fmt.Sprintf("tables.%s.columns.%s", table, column)
			strategy, err := parseStrategyValue(location, raw)
			if err != nil {
				return nil, err
			}
			assignment.Set(table, column, strategy)
		}
	}
	return assignment, nil
}

func parseStrategyValue(location string, raw interface{}) (anonymizer.Strategy, error) {
	switch v := raw.(type) {
	case string:
		strategy, ok := anonymizer.ParseTag(v)
		if !ok {
			return anonymizer.Strategy{}, errs.NewConfigError(location,
				"unknown strategy %q (known strategies: %s)", v, strings.Join(anonymizer.KnownTags(), ", "))
		}
		return strategy, nil
	case map[interface{}]interface{}:
		if len(v) != 1 {
			return anonymizer.Strategy{}, errs.NewConfigError(location,
				"strategy map form must have exactly one key, got %d", len(v))
		}
		for key, payload := range v {
			tag, ok := key.(string)
			if !ok || tag != anonymizer.TagFixed {
				return anonymizer.Strategy{}, errs.NewConfigError(location,
					"unknown strategy map form %v, only {%s: <value>} is recognized", key, anonymizer.TagFixed)
			}
			payloadStr, ok := payload.(string)
			if !ok {
				return anonymizer.Strategy{}, errs.NewConfigError(location,
					"fixed payload must be a string, got %T", payload)
			}
			return anonymizer.NewFixed(payloadStr), nil
		}
		return anonymizer.Strategy{}, errs.NewConfigError(location, "empty strategy map form")
	case nil:
		return anonymizer.Strategy{}, errs.NewConfigError(location, "strategy is empty")
	default:
		return anonymizer.Strategy{}, errs.NewConfigError(location,
			"strategy must be a tag or {%s: <value>}, got %T", anonymizer.TagFixed, raw)
	}
}

// Marshal renders the plan as YAML. Tables and columns come out sorted, so
// the same plan always serializes to the same bytes.
func Marshal(assignment *anonymizer.StrategyAssignment) ([]byte, error) {
	cfg := yamlConfig{Tables: make(map[string]yamlTable)}
	for _, table := range assignment.Tables() {
		columns := make(map[string]interface{})
		for _, column := range assignment.Columns(table) {
			strategy, _ := assignment.Get(table, column)
			if strategy.Kind == anonymizer.StrategyFixed {
				columns[column] = map[string]string{anonymizer.TagFixed: strategy.FixedValue}
			} else {
				columns[column] = strategy.Tag()
			}
		}
		cfg.Tables[table] = yamlTable{Columns: columns}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal anonymization plan: %w", err)
	}
	return data, nil
}

// Save writes the plan file.
func Save(path string, assignment *anonymizer.StrategyAssignment) error {
	data, err := Marshal(assignment)
	if err != nil {
		return err
	}
	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return errs.NewIoError("write", path, err)
	}
	return nil
}
