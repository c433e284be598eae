package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/export"
	"github.com/sells-group/terrasight/internal/model"
)

var (
	exportRegion string
	exportIndex  string
	exportLimit  int
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a region time series to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		idx, ok := model.ParseIndexType(exportIndex)
		if !ok {
			return eris.Errorf("unknown index type: %s", exportIndex)
		}

		regionName := exportRegion
		if regionName == "" {
			regionName = cfg.Regions.DefaultRegion
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		region, err := st.GetRegion(ctx, regionName)
		if err != nil {
			return err
		}
		if region == nil {
			return eris.Errorf("unknown region: %s", regionName)
		}

		stats, err := st.RegionSeries(ctx, regionName, idx, exportLimit)
		if err != nil {
			return err
		}
		if err := export.WriteRegionSeries(exportOut, regionName, idx, stats); err != nil {
			return err
		}

		zap.L().Info("series exported",
			zap.String("region", regionName),
			zap.String("index", string(idx)),
			zap.Int("rows", len(stats)),
			zap.String("out", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRegion, "region", "", "region name (default from config)")
	exportCmd.Flags().StringVar(&exportIndex, "index", "vegetation", "index type")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 365, "maximum number of days")
	exportCmd.Flags().StringVar(&exportOut, "out", "series.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
