package airtable

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// Record is one row of a table: a flat map of named fields.
type Record struct {
	ID          string         `json:"id,omitempty"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Table is a handle for one table of the client's base.
type Table struct {
	client *Client
	name   string
}

// ListOptions narrows a List call. Zero value lists the whole table.
type ListOptions struct {
	// Formula is an Airtable filterByFormula expression.
	Formula string
	// SortField orders results; SortDesc flips the direction.
	SortField string
	SortDesc  bool
	// Fields restricts the returned field set when non-empty.
	Fields []string
}

type recordsResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

type recordsRequest struct {
	Records  []Record `json:"records"`
	Typecast bool     `json:"typecast"`
}

type recordRequest struct {
	Fields   map[string]any `json:"fields"`
	Typecast bool           `json:"typecast"`
}

func (t *Table) path() string {
	return fmt.Sprintf("/%s/%s", t.client.baseID, url.PathEscape(t.name))
}

// List returns all records matching opts, following the offset cursor across
// pages.
func (t *Table) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	q := url.Values{}
	q.Set("pageSize", pageSize)
	if opts.Formula != "" {
		q.Set("filterByFormula", opts.Formula)
	}
	if opts.SortField != "" {
		q.Set("sort[0][field]", opts.SortField)
		direction := "asc"
		if opts.SortDesc {
			direction = "desc"
		}
		q.Set("sort[0][direction]", direction)
	}
	for _, field := range opts.Fields {
		q.Add("fields[]", field)
	}

	var records []Record
	for {
		var page recordsResponse
		if err := t.client.doJSON(ctx, "GET", t.path(), q, nil, &page); err != nil {
			return nil, err
		}

		records = append(records, page.Records...)

		if page.Offset == "" {
			return records, nil
		}

		t.client.logger.Debug("additional page needed",
			zap.String("table", t.name),
			zap.Int("records_so_far", len(records)),
		)
		q.Set("offset", page.Offset)
	}
}

// Get fetches a single record by id.
func (t *Table) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, errors.New("record id is required")
	}

	var record Record
	if err := t.client.doJSON(ctx, "GET", t.path()+"/"+id, nil, nil, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// Create inserts one record and returns it with its assigned id.
func (t *Table) Create(ctx context.Context, fields map[string]any) (*Record, error) {
	body := recordsRequest{
		Records:  []Record{{Fields: fields}},
		Typecast: true,
	}

	var resp recordsResponse
	if err := t.client.doJSON(ctx, "POST", t.path(), nil, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Records) == 0 {
		return nil, errors.New("create returned no records")
	}

	return &resp.Records[0], nil
}

// Update patches the named fields of one record, leaving others untouched.
func (t *Table) Update(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return errors.New("record id is required")
	}

	body := recordRequest{Fields: fields, Typecast: true}
	return t.client.doJSON(ctx, "PATCH", t.path()+"/"+id, nil, body, nil)
}

// BatchCreate inserts records in chunks of MaxBatchSize. When a chunk fails
// each of its records is retried individually so one bad record does not sink
// the rest. Returns the number of records created and the joined errors of
// the records that could not be written.
func (t *Table) BatchCreate(ctx context.Context, fields []map[string]any) (int, error) {
	created := 0
	var errs []error

	for start := 0; start < len(fields); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(fields) {
			end = len(fields)
		}
		chunk := fields[start:end]

		body := recordsRequest{Typecast: true}
		for _, f := range chunk {
			body.Records = append(body.Records, Record{Fields: f})
		}

		var resp recordsResponse
		err := t.client.doJSON(ctx, "POST", t.path(), nil, body, &resp)
		if err == nil {
			created += len(resp.Records)
			continue
		}

		t.client.logger.Warn("batch create failed, falling back to single creates",
			zap.String("table", t.name),
			zap.Int("chunk_size", len(chunk)),
			zap.Error(err),
		)

		for _, f := range chunk {
			if _, err := t.Create(ctx, f); err != nil {
				errs = append(errs, err)
				continue
			}
			created++
		}
	}

	return created, errors.Join(errs...)
}
