// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/paths"
)

var (
	configInitForce      bool
	configInitPath       string
	configShowJSON       bool
	configShowSection    string
	configShowEffective  bool
	configValidatePath   string
	configEditPath       string
	configEditNoValidate bool
)

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "write config.toml here instead of the default location")

	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output as JSON")
	configShowCmd.Flags().StringVar(&configShowSection, "section", "", "show only one top-level section (daemon, monitoring, resume, metrics, subordinate, notifications, otel, bot)")
	configShowCmd.Flags().BoolVar(&configShowEffective, "effective", false, "show the config with defaults applied, not the raw file contents")

	configValidateCmd.Flags().StringVar(&configValidatePath, "path", "", "validate this file instead of the default location")

	configEditCmd.Flags().StringVar(&configEditPath, "path", "", "edit this file instead of the default location")
	configEditCmd.Flags().BoolVar(&configEditNoValidate, "no-validate", false, "skip validating the file after editing")

	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd, configEditCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage config.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.toml",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config.toml without loading it into a running daemon",
	RunE:  runConfigValidate,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config.toml in $EDITOR",
	RunE:  runConfigEdit,
}

func configFilePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	dirs, err := paths.Resolve()
	if err != nil {
		return "", internalErr(fmt.Errorf("resolve paths: %w", err))
	}
	return dirs.ConfigFile(), nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath(configInitPath)
	if err != nil {
		return err
	}

	if !configInitForce {
		if _, statErr := os.Stat(path); statErr == nil {
			return userErr("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.NewLoader().Save(config.Default(), path); err != nil {
		return internalErr(fmt.Errorf("write %s: %w", path, err))
	}
	fmt.Println(path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, err := configFilePath("")
	if err != nil {
		return err
	}

	loader := config.NewLoader()
	var cfg *config.Config
	if configShowEffective {
		cfg, err = loader.LoadWithDefaults(path)
	} else {
		cfg, err = loader.Load(path)
	}
	if err != nil {
		return userErr("load %s: %w", path, err)
	}

	var section interface{} = cfg
	if configShowSection != "" {
		section, err = selectSection(cfg, configShowSection)
		if err != nil {
			return userErr("%w", err)
		}
	}

	if configShowJSON {
		out, _ := json.MarshalIndent(section, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	enc := toml.NewEncoder(os.Stdout)
	if err := enc.Encode(section); err != nil {
		return internalErr(fmt.Errorf("encode config: %w", err))
	}
	return nil
}

func selectSection(cfg *config.Config, name string) (interface{}, error) {
	switch name {
	case "daemon":
		return cfg.Daemon, nil
	case "monitoring":
		return cfg.Monitoring, nil
	case "resume":
		return cfg.Resume, nil
	case "metrics":
		return cfg.Metrics, nil
	case "subordinate":
		return cfg.Subordinate, nil
	case "notifications":
		return cfg.Notifications, nil
	case "otel":
		return cfg.Otel, nil
	case "bot":
		return cfg.Bot, nil
	default:
		return nil, fmt.Errorf("unknown section %q", name)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path, err := configFilePath(configValidatePath)
	if err != nil {
		return err
	}

	cfg, err := config.NewLoader().LoadWithDefaults(path)
	if err != nil {
		return userErr("parse %s: %w", path, err)
	}

	if verr := config.NewValidator().Validate(cfg); verr != nil {
		fmt.Fprintln(os.Stderr, verr)
		return userErr("%s is invalid", path)
	}

	fmt.Println("ok")
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath(configEditPath)
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	edit := exec.Command(editor, path)
	edit.Stdin, edit.Stdout, edit.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := edit.Run(); err != nil {
		return internalErr(fmt.Errorf("run %s: %w", editor, err))
	}

	if configEditNoValidate {
		return nil
	}

	cfg, err := config.NewLoader().LoadWithDefaults(path)
	if err != nil {
		return userErr("parse %s: %w", path, err)
	}
	if verr := config.NewValidator().Validate(cfg); verr != nil {
		fmt.Fprintln(os.Stderr, verr)
		return userErr("%s is invalid after editing", path)
	}
	return nil
}
