// Package main provides the advrobust CLI: adversarial robustness
// experiments for traffic-sign classifiers.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}
