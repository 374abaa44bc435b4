package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/livewatch-cli/livewatch/color"
	"github.com/livewatch-cli/livewatch/config"
	"github.com/livewatch-cli/livewatch/constant"
	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/livewatch-cli/livewatch/icon"
	"github.com/livewatch-cli/livewatch/style"
	"github.com/livewatch-cli/livewatch/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInfoCmd, configGetCmd, configSetCmd, configResetCmd, configWriteCmd, configDeleteCmd)

	configInfoCmd.Flags().BoolP("json", "j", false, "Print fields grouped by section as JSON")
	configInfoCmd.SetOut(os.Stdout)

	configResetCmd.Flags().BoolP("all", "a", false, "Reset every field")

	configWriteCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
}

func configFile() string {
	return filepath.Join(where.Config(), constant.Livewatch+".toml")
}

// completeKeysAndSections offers sections first, then keys, skipping the ones already given.
func completeKeysAndSections(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	names := append(config.Sections(), lo.Keys(config.Default)...)
	return lo.Without(names, args...), cobra.ShellCompDirectiveNoFileComp
}

func completeKey(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return lo.Keys(config.Default), cobra.ShellCompDirectiveNoFileComp
}

// highlightUnknown colors the offending key and the suggestion of an UnknownKeyError.
func highlightUnknown(err error) error {
	var unknown *config.UnknownKeyError
	if !errors.As(err, &unknown) {
		return err
	}

	return fmt.Errorf(
		"unknown key %s, did you mean %s?",
		style.Fg(color.Red)(unknown.Key),
		style.Fg(color.Yellow)(unknown.Suggestion),
	)
}

func resolveFields(names []string) []config.Field {
	fields, err := config.Resolve(names...)
	handleErr(highlightUnknown(err))
	return fields
}

// persist writes the in-memory configuration, creating the file on first use.
func persist() {
	switch err := viper.WriteConfig(); err.(type) {
	case viper.ConfigFileNotFoundError:
		handleErr(viper.SafeWriteConfig())
	default:
		handleErr(err)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change playback, snapshot, volume and other settings",
}

var configInfoCmd = &cobra.Command{
	Use:   "info [section|key]...",
	Short: "Describe configuration fields, grouped by section",
	Example: `  livewatch config info
  livewatch config info player volume.user`,
	ValidArgsFunction: completeKeysAndSections,
	Run: func(cmd *cobra.Command, args []string) {
		groups := config.Grouped(resolveFields(args))

		if lo.Must(cmd.Flags().GetBool("json")) {
			lo.Must0(json.NewEncoder(cmd.OutOrStdout()).Encode(groups))
			return
		}

		for i, group := range groups {
			if i > 0 {
				fmt.Println()
			}
			fmt.Println(style.Title(group.Section))

			for _, field := range group.Fields {
				fmt.Println()
				fmt.Println(field.Pretty())
			}
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:               "get [section|key]...",
	Short:             "Print current values",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeKeysAndSections,
	Run: func(cmd *cobra.Command, args []string) {
		fields := resolveFields(args)

		// a single key prints the bare value so it can be used in scripts
		if len(fields) == 1 && len(args) == 1 && args[0] == fields[0].Key {
			fmt.Println(viper.Get(fields[0].Key))
			return
		}

		for _, group := range config.Grouped(fields) {
			for _, field := range group.Fields {
				fmt.Printf("%s = %v\n", style.Fg(color.Purple)(field.Key), viper.Get(field.Key))
			}
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set key value...",
	Short: "Validate and save a new value for a key",
	Example: `  livewatch config set player.retry_delay 5s
  livewatch config set player.max_retries -1
  livewatch config set snapshot.format png`,
	Args:              cobra.MinimumNArgs(2),
	ValidArgsFunction: completeKey,
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		field, ok := config.Default[key]
		if !ok {
			handleErr(highlightUnknown(&config.UnknownKeyError{Key: key, Suggestion: config.Suggest(key)}))
		}

		v, err := field.Parse(args[1:])
		handleErr(err)

		previous := viper.Get(key)
		viper.Set(key, v)
		persist()

		fmt.Printf(
			"%s %s %s %s %s\n",
			style.Fg(color.Green)(icon.Get(icon.Success)),
			style.Fg(color.Purple)(key),
			style.Faint(fmt.Sprint(previous)),
			style.Faint("->"),
			style.Fg(color.Yellow)(fmt.Sprint(v)),
		)
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset [section|key]...",
	Short: "Restore defaults for keys or whole sections",
	Example: `  livewatch config reset player
  livewatch config reset --all`,
	ValidArgsFunction: completeKeysAndSections,
	Run: func(cmd *cobra.Command, args []string) {
		all := lo.Must(cmd.Flags().GetBool("all"))
		if all == (len(args) > 0) {
			handleErr(errors.New("give either keys and sections or --all"))
		}

		fields := resolveFields(args)
		for _, field := range fields {
			viper.Set(field.Key, field.Value)
		}
		persist()

		if all {
			fmt.Printf("%s reset every field\n", style.Fg(color.Green)(icon.Get(icon.Success)))
			return
		}

		for _, field := range fields {
			fmt.Printf(
				"%s reset %s to %s\n",
				style.Fg(color.Green)(icon.Get(icon.Success)),
				style.Fg(color.Purple)(field.Key),
				style.Fg(color.Yellow)(fmt.Sprint(field.Value)),
			)
		}
	},
}

var configWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Write the current configuration to the config file",
	Run: func(cmd *cobra.Command, args []string) {
		path := configFile()

		if lo.Must(cmd.Flags().GetBool("force")) {
			if err := filesystem.API().Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				handleErr(err)
			}
		}

		handleErr(viper.SafeWriteConfig())
		fmt.Printf("%s wrote config to %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), path)
	},
}

var configDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Remove the config file",
	Aliases: []string{"remove"},
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(filesystem.API().Remove(configFile()))
		fmt.Printf("%s deleted config\n", style.Fg(color.Green)(icon.Get(icon.Success)))
	},
}
