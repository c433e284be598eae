package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/terrasight/internal/store"
)

var scenesLimit int

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List recently ingested scenes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("scenes"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		scenes, err := st.ListScenes(ctx, store.SceneFilter{Limit: scenesLimit})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(scenes)
	},
}

func init() {
	scenesCmd.Flags().IntVar(&scenesLimit, "limit", 20, "maximum scenes to list")
	rootCmd.AddCommand(scenesCmd)
}
