package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/gcpauth"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Deduper is implemented by rows that carry a stable streaming insert ID.
// BigQuery drops repeats of the same ID seen within about a minute, which
// covers a cron retry of the same snapshot.
type Deduper interface {
	InsertID() string
}

// Client streams analytics rows into one dataset. The dataset and every
// configured table must already exist; they are checked at startup.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tables := configuredTables(cfg)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case len(tables) == 0:
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcpauth.Options(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), tables: tables}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"tables":  strings.Join(tables, ","),
		}), "bigquery client initialized")
	}
	return c, nil
}

func configuredTables(cfg config.BigQueryConfig) []string {
	if name := strings.TrimSpace(cfg.ReceivablesTable); name != "" {
		return []string{name}
	}
	return nil
}

// Ping confirms the dataset and tables are visible to the credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describeMetadataErr("dataset", c.dataset.DatasetID, err)
	}
	for _, name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return describeMetadataErr("table", name, err)
		}
	}
	return nil
}

func describeMetadataErr(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Rows are structs tagged with
// `bigquery:"column"`; those implementing Deduper are sent with their insert ID.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.dataset.Table(table).Inserter().Put(ctx, withInsertIDs(rows)); err != nil {
		return summarizePutErr(table, err)
	}
	return nil
}

func withInsertIDs(rows []any) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		d, ok := row.(Deduper)
		if !ok {
			out[i] = row
			continue
		}
		out[i] = &bigquery.StructSaver{Struct: row, InsertID: d.InsertID()}
	}
	return out
}

// summarizePutErr collapses per-row failures into one error naming the first.
func summarizePutErr(table string, err error) error {
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		return fmt.Errorf("insert into %s: %d rows rejected, first: %s", table, len(multi), multi[0].Error())
	}
	return fmt.Errorf("insert into %s: %w", table, err)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
