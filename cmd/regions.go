package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/region"
)

var regionsNameField string

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Manage aggregation regions",
}

var regionsLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load region polygons from a YAML definition or ESRI shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		if err := cfg.Validate("regions"); err != nil {
			return err
		}

		var regions []model.Region
		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			regions, err = region.LoadYAML(path)
		case ".shp":
			regions, err = region.LoadShapefile(path, regionsNameField)
		default:
			return eris.Errorf("unsupported region file extension: %s", filepath.Ext(path))
		}
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		if err := region.Sync(ctx, st, regions); err != nil {
			return err
		}

		zap.L().Info("regions loaded", zap.String("file", path), zap.Int("count", len(regions)))
		return nil
	},
}

func init() {
	regionsLoadCmd.Flags().StringVar(&regionsNameField, "name-field", "NAME", "shapefile attribute holding the region name")
	regionsCmd.AddCommand(regionsLoadCmd)
	rootCmd.AddCommand(regionsCmd)
}
