package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/checkpoint"
)

func newCheckpointsCmd(root *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Manage experiment checkpoints",
		Long: `Manage saved experiment checkpoints. A checkpoint holds the trained
weights, the chosen training and attack hyperparameters and the resistance
report of one experiment.`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Checkpoint folder (default: paths.checkpoints from the config)")

	openStore := func() (*checkpoint.FSStore, error) {
		if dir == "" {
			cfg, err := root.loadConfig()
			if err != nil {
				return nil, err
			}
			dir = cfg.Paths.Checkpoints
		}
		store, err := checkpoint.NewFSStore(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		return store, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			infos, err := store.List()
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No checkpoints found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODEL\tCREATED\tRUN\tSIZE\tREPORT")
			fmt.Fprintln(w, "----\t-----\t-------\t---\t----\t------")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					info.Name,
					info.ModelType,
					info.CreatedAt.Format("2006-01-02 15:04:05"),
					shortID(info.RunID),
					formatBytes(info.Size),
					info.Report.String(),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nTotal checkpoints: %d\n", len(infos))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete checkpoints by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			failed := 0
			for _, name := range args {
				if err := store.Delete(name); err != nil {
					slog.Error("Failed to delete checkpoint", "name", name, "err", err)
					failed++
					continue
				}
				slog.Info("Deleted checkpoint", "name", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d checkpoint(s), %d failed.\n", len(args)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d checkpoint(s) could not be deleted", failed)
			}
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func shortID(id string) string {
	switch {
	case id == "":
		return "-"
	case len(id) > 8:
		return id[:8]
	}
	return id
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
