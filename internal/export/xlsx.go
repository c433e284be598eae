// Package export writes stored statistics to spreadsheet workbooks.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/terrasight/internal/model"
)

// WriteRegionSeries writes one region's daily statistics for one index to
// an xlsx workbook at path. Rows keep the order they are given in.
func WriteRegionSeries(path, regionName string, idx model.IndexType, stats []model.RegionStatistic) error {
	if len(stats) == 0 {
		return eris.Errorf("export: no statistics for region %q index %q", regionName, string(idx))
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(string(idx))
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"region", "date", "index", "mean", "min", "max", "std_dev", "sample_count"} {
		header.AddCell().SetString(h)
	}

	for _, st := range stats {
		row := sheet.AddRow()
		row.AddCell().SetString(st.RegionName)
		row.AddCell().SetString(st.Date)
		row.AddCell().SetString(string(st.Index))
		row.AddCell().SetFloat(st.Mean)
		row.AddCell().SetFloat(st.Min)
		row.AddCell().SetFloat(st.Max)
		row.AddCell().SetFloat(st.StdDev)
		row.AddCell().SetInt(st.SampleCount)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
