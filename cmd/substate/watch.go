package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goliatone/go-substate"
	"github.com/goliatone/go-substate/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultDebounce = 100 * time.Millisecond

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Follow a snapshot file and report notifications as it changes",
		Long: `Loads FILE as the initial state, subscribes every --watch path and then
re-reads FILE whenever it is written or replaced, applying each version as a
store update. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchE,
	}
	cmd.Flags().StringSlice("watch", nil, "Paths to subscribe to (comma-separated or repeated)")
	cmd.Flags().Duration("debounce", defaultDebounce, "Quiet period before a changed file is re-read")
	return cmd
}

func runWatchE(cmd *cobra.Command, args []string) error {
	watches, _ := cmd.Flags().GetStringSlice("watch")
	if len(watches) == 0 {
		return fmt.Errorf("watch needs at least one --watch path")
	}
	debounce, _ := cmd.Flags().GetDuration("debounce")
	file := args[0]
	logger := getLogger(cmd)

	initial, err := loadSnapshot(file)
	if err != nil {
		return err
	}
	store := substate.NewStore(initial,
		substate.WithLogger(logging.NewAdapter(logger)),
		substate.WithDeferredUpdates(),
	)

	opts := getOptions(cmd)
	out := cmd.OutOrStdout()
	step := 0
	for _, watch := range watches {
		watch := watch
		_, err := store.SubscribeFunc(watch, func(value any) {
			n := notification{Update: step, Watch: watch, Value: value}
			if opts.JSONOutput {
				_ = writeValue(out, opts, n)
				return
			}
			fmt.Fprintf(out, "#%d %s = %v\n", n.Update, n.Watch, n.Value)
		})
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return followFile(ctx, file, debounce, logger, func(next any) error {
		step++
		return store.Update(next)
	})
}

// followFile calls apply with the freshly parsed file after every write or
// replacement, until ctx is done. Bursts of events within debounce collapse
// into one reload. Unparsable or empty versions are logged and skipped.
func followFile(ctx context.Context, file string, debounce time.Duration, logger *logrus.Entry, apply func(any) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	// editors replace files by rename, so watch the directory
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("watcher error")
		case <-timer.C:
			next, err := loadSnapshot(target)
			if err != nil {
				logger.WithError(err).Warn("skipping unreadable snapshot")
				continue
			}
			if next == nil {
				logger.Debug("skipping empty snapshot")
				continue
			}
			if err := apply(next); err != nil {
				return err
			}
		}
	}
}
