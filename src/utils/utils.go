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

package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DoNotPrompt disables interactive confirmations; set by the --yes flag.
var DoNotPrompt bool

func Readline(r *bufio.Reader) (string, error) {
	var (
		isPrefix bool  = true
		err      error = nil
		line, ln []byte
	)
	for isPrefix && err == nil {
		line, isPrefix, err = r.ReadLine()
		ln = append(ln, line...)
	}
	return string(ln), err
}

func AskPrompt(args ...string) bool {
	if DoNotPrompt {
		return true
	}
	var input string
	var argsLen int = len(args)

	for i := 0; i < argsLen; i++ {
		if i != argsLen-1 {
			fmt.Printf("%s ", args[i])
		} else {
			fmt.Printf("%s", args[i])
		}

	}
	fmt.Printf("? [Y/N]: ")

	_, err := fmt.Scan(&input)

	if err != nil {
		panic(err)
	}

	input = strings.TrimSpace(input)
	input = strings.ToUpper(input)

	if input == "Y" || input == "YES" {
		return true
	}
	return false
}

func FileOrFolderExists(path string) bool {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		} else {
			panic(err)
		}
	} else {
		return true
	}
}

//Handling Bool flags with an explicit type

type BoolStr bool

func (b *BoolStr) Set(s string) error {
	s = strings.ToLower(s)
	t := BoolStr(s == "true" || s == "1" || s == "t" || s == "y" || s == "yes")
	if !t {
		f := BoolStr(s == "false" || s == "0" || s == "f" || s == "n" || s == "no")
		if !f { // value is neither true nor false.
			return fmt.Errorf("invalid boolean value: %q (valid values: true, false)", s)
		}
	}
	*b = t
	return nil
}

func (b *BoolStr) Type() string {
	return "boolean"
}

func (b *BoolStr) String() string {
	if *b {
		return "true"
	}
	return "false"
}
