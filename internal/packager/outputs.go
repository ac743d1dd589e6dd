package packager

import (
	"bytes"
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/metadata"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/storage"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/tables"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Published file names.
const (
	WorkbookKey  = "time_series.xlsx"
	GapReportKey = "gap_report.json"
)

// ParquetKey returns the long-format table of res.
func ParquetKey(res timeseries.Resolution) string {
	return tables.TableName(res) + ".parquet"
}

// CSVKey returns the wide table of res.
func CSVKey(res timeseries.Resolution) string {
	return tables.TableName(res) + "_singleindex.csv"
}

// outputs encodes every published file. The descriptor comes last and lists
// the checksums of all the others.
func (p *Packager) outputs(datasets map[timeseries.Resolution]*timeseries.Dataset, sum *Summary) ([]storage.Object, error) {
	desc := metadata.NewDescriptor(p.runID, metadata.ProducerInfo{
		Name:    ProducerName,
		Version: p.version(),
		GitSHA:  GitSHA,
	}, time.Now())
	desc.AddSources(p.deps.Catalog)

	var objs []storage.Object
	add := func(key, format, mediaType string, data []byte, rows int, schema *metadata.Schema) {
		digest := tables.Sum(data)
		objs = append(objs, storage.Object{Key: key, Data: data})
		sum.Checksums[key] = digest.Hash
		desc.AddResource(key, key, format, mediaType, digest, rows, schema)
	}

	tcfg := tables.Config{Compression: p.cfg.Storage.Compression}
	if tcfg.Compression == "" {
		tcfg = tables.DefaultConfig()
	}

	ordered := make([]*timeseries.Dataset, 0, len(timeseries.Resolutions))
	for _, res := range timeseries.Resolutions {
		ds := datasets[res]
		ordered = append(ordered, ds)

		rows := tables.Rows(ds)
		pq, err := tables.EncodeParquet(rows, tcfg)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ParquetKey(res), err)
		}
		add(ParquetKey(res), "parquet", "application/vnd.apache.parquet", pq, len(rows), metadata.LongSchema())

		wide, err := tables.EncodeCSV(ds)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", CSVKey(res), err)
		}
		add(CSVKey(res), "csv", "text/csv", wide, ds.Grid().Len, metadata.WideSchema(ds))
	}

	wb, err := tables.EncodeXLSX(ordered)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", WorkbookKey, err)
	}
	add(WorkbookKey, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", wb, 0, nil)

	var report bytes.Buffer
	if err := gaps.Encode(&report, sum.Reports); err != nil {
		return nil, fmt.Errorf("encode %s: %w", GapReportKey, err)
	}
	add(GapReportKey, "json", "application/json", report.Bytes(), 0, nil)

	raw, err := desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", metadata.DescriptorName, err)
	}
	objs = append(objs, storage.Object{Key: metadata.DescriptorName, Data: raw})
	sum.Checksums[metadata.DescriptorName] = tables.Sum(raw).Hash
	sum.Descriptor = desc
	return objs, nil
}
