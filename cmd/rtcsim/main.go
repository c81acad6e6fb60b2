// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Command rtcsim runs a pull-rate conferencing scenario to completion over
// the simulated network in internal/simnet.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ndn-rtc/rtcsim/internal/metrics"
	"github.com/ndn-rtc/rtcsim/internal/scenario"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rtcsim",
		Short: "Simulated pull-rate engine for name-centric real-time conferencing",
	}

	root.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics at this address")
	root.PersistentFlags().String("out-dir", ".", "directory CSV output filenames are relative to")

	v := viper.New()
	v.SetEnvPrefix("RTCSIM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd(v))
	return root
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var scenarioPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			v.BindPFlags(cmd.Flags())
			return runScenario(scenarioPath, v)
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to a scenario YAML file")
	cmd.MarkFlagRequired("scenario")
	return cmd
}

func runScenario(path string, v *viper.Viper) error {
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	s, err := scenario.Load(path)
	if err != nil {
		return err
	}
	outDir := v.GetString("out-dir")
	underOutDir := func(f string) string {
		if f == "" || filepath.IsAbs(f) {
			return f
		}
		return filepath.Join(outDir, f)
	}
	s.Producer.Filename = underOutDir(s.Producer.Filename)
	for i := range s.Consumers {
		s.Consumers[i].Filename = underOutDir(s.Consumers[i].Filename)
		s.Consumers[i].FilenameInterarrival = underOutDir(s.Consumers[i].FilenameInterarrival)
	}

	runID := uuid.NewString()

	var reg *prometheus.Registry
	addr := v.GetString("metrics-addr")
	if addr != "" {
		reg = prometheus.NewRegistry()
		go func() {
			if err := metrics.Serve(addr, reg); err != nil {
				logrus.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	built, err := scenario.Build(s, reg, runID)
	if err != nil {
		return fmt.Errorf("building scenario: %w", err)
	}

	logrus.WithField("run", runID).Infof("running scenario %s: %d consumer(s), %d cache(s)", path, len(s.Consumers), len(s.Caches))
	return built.Sim.Run()
}
