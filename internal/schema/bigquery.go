package schema

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// BigQueryIntrospector reads table and column structure from a BigQuery
// dataset's metadata. Relationships cannot be introspected (BigQuery has no
// foreign keys), so they come from the metadata file alone.
type BigQueryIntrospector struct {
	client  *bigquery.Client
	dataset string
}

func NewBigQueryIntrospector(client *bigquery.Client, dataset string) *BigQueryIntrospector {
	return &BigQueryIntrospector{client: client, dataset: dataset}
}

func (in *BigQueryIntrospector) Introspect(ctx context.Context) (RawSchema, error) {
	var raw RawSchema

	it := in.client.Dataset(in.dataset).Tables(ctx)
	for {
		table, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return RawSchema{}, fmt.Errorf("list tables: %w", err)
		}

		md, err := table.Metadata(ctx)
		if err != nil {
			return RawSchema{}, fmt.Errorf("table metadata %s: %w", table.TableID, err)
		}

		rt := RawTable{
			Name:        table.TableID,
			Description: md.Description,
		}
		for _, field := range md.Schema {
			rt.Columns = append(rt.Columns, RawColumn{
				Name:        field.Name,
				Type:        string(field.Type),
				Description: field.Description,
			})
		}
		raw.Tables = append(raw.Tables, rt)
	}

	return raw, nil
}
