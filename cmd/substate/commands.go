package main

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-substate"
	"github.com/goliatone/go-substate/layering"
	"github.com/goliatone/go-substate/pkg/logging"
	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Print the changed paths between two snapshots",
		Long: `Loads two YAML, JSON or TOML snapshots and prints the shallowest paths
at which they differ, one per line. No output means the snapshots are deeply
equal.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := loadSnapshot(args[0])
			if err != nil {
				return err
			}
			after, err := loadSnapshot(args[1])
			if err != nil {
				return err
			}
			changed := layering.Diff(before, after)
			dotted := make([]string, len(changed))
			for i, path := range changed {
				dotted[i] = path.String()
			}
			opts := getOptions(cmd)
			if opts.JSONOutput {
				return writeValue(cmd.OutOrStdout(), opts, dotted)
			}
			for _, path := range dotted {
				if path == "" {
					path = "."
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}

func newSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select FILE [PATH...]",
		Short: "Evaluate a selector against a snapshot",
		Long: `Evaluates a selector against a snapshot file.

One PATH selects a single value, several select a list. --field builds a map
selector and --expr an expression selector.

Examples:
  substate select state.yaml user.name
  substate select state.yaml user.name user.age
  substate select state.yaml --field n=user.name --field a=user.age
  substate select state.yaml --expr 'user.age >= 18' --deps user.age --engine cel
`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSelectE,
	}
	cmd.Flags().StringArray("field", nil, "Map selector field as name=path (repeatable)")
	cmd.Flags().String("expr", "", "Expression selector body")
	cmd.Flags().StringSlice("deps", nil, "Dependency paths for --expr")
	cmd.Flags().Bool("infer", false, "Infer --expr dependencies from the expression (expr engine only)")
	cmd.Flags().String("engine", substate.EngineExpr, "Expression engine: expr, cel or js")
	return cmd
}

func runSelectE(cmd *cobra.Command, args []string) error {
	snapshot, err := loadSnapshot(args[0])
	if err != nil {
		return err
	}
	sel, err := selectorFromFlags(cmd, args[1:])
	if err != nil {
		return err
	}
	value, err := sel.Evaluate(snapshot)
	if err != nil {
		return err
	}
	return writeValue(cmd.OutOrStdout(), getOptions(cmd), value)
}

func selectorFromFlags(cmd *cobra.Command, paths []string) (substate.Selector, error) {
	fields, _ := cmd.Flags().GetStringArray("field")
	expr, _ := cmd.Flags().GetString("expr")
	deps, _ := cmd.Flags().GetStringSlice("deps")
	engine, _ := cmd.Flags().GetString("engine")
	infer, _ := cmd.Flags().GetBool("infer")

	switch {
	case expr != "":
		exprOpts := []substate.ExpressionOption{
			substate.WithEngine(engine),
			substate.WithEvaluatorLogger(logging.NewAdapter(getLogger(cmd))),
		}
		if infer {
			exprOpts = append(exprOpts, substate.WithInferredDependencies())
		}
		return substate.Expression(expr, deps, exprOpts...)
	case len(fields) > 0:
		spec := make(map[string]string, len(fields))
		for _, item := range fields {
			name, path, ok := strings.Cut(item, "=")
			if !ok {
				return substate.Selector{}, fmt.Errorf("field %q must be name=path", item)
			}
			spec[strings.TrimSpace(name)] = strings.TrimSpace(path)
		}
		return substate.Map(spec)
	case len(paths) == 1:
		return substate.Path(paths[0])
	case len(paths) > 1:
		return substate.List(paths...)
	default:
		return substate.Selector{}, fmt.Errorf("select needs a PATH, --field or --expr")
	}
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay FILE...",
		Short: "Replay snapshots through a store and report notifications",
		Long: `Loads the first file as the initial state and applies every following file
as an update. Each --watch path is subscribed before the first update; every
notification prints the update number, the watched path and its new value.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runReplayE,
	}
	cmd.Flags().StringSlice("watch", nil, "Paths to subscribe to (comma-separated or repeated)")
	return cmd
}

type notification struct {
	Update int    `json:"update" yaml:"update"`
	Watch  string `json:"watch" yaml:"watch"`
	Value  any    `json:"value" yaml:"value"`
}

func runReplayE(cmd *cobra.Command, args []string) error {
	watches, _ := cmd.Flags().GetStringSlice("watch")
	if len(watches) == 0 {
		return fmt.Errorf("replay needs at least one --watch path")
	}
	initial, err := loadSnapshot(args[0])
	if err != nil {
		return err
	}

	store := substate.NewStore(initial, substate.WithLogger(logging.NewAdapter(getLogger(cmd))))
	var (
		step          int
		notifications []notification
	)
	for _, watch := range watches {
		watch := watch
		_, err := store.SubscribeFunc(watch, func(value any) {
			notifications = append(notifications, notification{Update: step, Watch: watch, Value: value})
		})
		if err != nil {
			return err
		}
	}

	for i, file := range args[1:] {
		next, err := loadSnapshot(file)
		if err != nil {
			return err
		}
		step = i + 1
		if err := store.Update(next); err != nil {
			return err
		}
	}

	opts := getOptions(cmd)
	if opts.JSONOutput {
		if notifications == nil {
			notifications = []notification{}
		}
		return writeValue(cmd.OutOrStdout(), opts, notifications)
	}
	for _, n := range notifications {
		fmt.Fprintf(cmd.OutOrStdout(), "#%d %s = %v\n", n.Update, n.Watch, n.Value)
	}
	return nil
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths FILE",
		Short: "List every leaf path of a snapshot with its type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := loadSnapshot(args[0])
			if err != nil {
				return err
			}
			fields := substate.Describe(snapshot)
			opts := getOptions(cmd)
			if opts.JSONOutput {
				return writeValue(cmd.OutOrStdout(), opts, fields)
			}
			for _, field := range fields {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", field.Path, field.Type)
			}
			return nil
		},
	}
}
