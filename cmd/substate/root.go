package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-substate/pkg/logging"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// commandOptions holds the persistent flags shared by every subcommand.
type commandOptions struct {
	Verbose    bool
	JSONOutput bool
}

// NewRootCmd assembles the substate command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "substate",
		Short:         "Inspect snapshot diffs and selector subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging on stderr")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.SetGlobalNormalizationFunc(normalizeFlagName)

	cmd.AddCommand(
		newDiffCmd(),
		newSelectCmd(),
		newReplayCmd(),
		newPathsCmd(),
		newWatchCmd(),
	)
	return cmd
}

// normalizeFlagName accepts underscores in place of dashes.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func getOptions(cmd *cobra.Command) commandOptions {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return commandOptions{Verbose: verbose, JSONOutput: jsonOutput}
}

func getLogger(cmd *cobra.Command) *logrus.Entry {
	cfg := logging.Config{Level: "warn", Output: cmd.ErrOrStderr()}
	if getOptions(cmd).Verbose {
		cfg.Level = "trace"
	}
	return logging.New("substate-cli", cfg)
}

// loadSnapshot reads a YAML, JSON or TOML document into a snapshot tree. The
// format follows the file extension; anything but .toml is parsed as YAML.
func loadSnapshot(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var out any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var doc map[string]any
		err = toml.Unmarshal(raw, &doc)
		out = doc
	default:
		err = yaml.Unmarshal(raw, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return out, nil
}

func writeValue(w io.Writer, opts commandOptions, value any) error {
	if opts.JSONOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(value); err != nil {
		return err
	}
	return enc.Close()
}
