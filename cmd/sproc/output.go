package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sprocio/sproc/internal/lifecycle"
)

const (
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorReset = "\x1b[0m"
)

// errFailed signals a non-zero exit after the failure was already printed.
var errFailed = errors.New("command failed")

func success(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stdout, colorGreen+"success:"+colorReset+" "+format+"\n", args...)
}

func failure(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, colorRed+"error:"+colorReset+" "+format+"\n", args...)
}

// reportResults prints one line per target and returns errFailed when any
// target failed, so batch commands exit non-zero without stopping early.
func reportResults(verb string, results []lifecycle.Result) error {
	for _, r := range results {
		if r.Err != nil {
			failure("%v", r.Err)
			continue
		}
		success("%s %s", verb, r.Name)
	}
	if lifecycle.AnyFailed(results) {
		return errFailed
	}
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, string(b))
	return nil
}
