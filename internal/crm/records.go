package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	apperrors "leadbot/cli/internal/errors"
)

// Record is a read-only snapshot of a remote record.
type Record struct {
	ID     string
	Name   string
	Status string
	// Fields holds every selected column keyed by API name.
	Fields map[string]any
}

// lookupLimit is two so callers can tell a unique match from an ambiguous one.
const lookupLimit = 2

// FindByName returns up to two records of object whose Name equals name
// exactly, selecting fields in addition to Id, Name, Status and Email.
func (c *Client) FindByName(ctx context.Context, object, name string, fields ...string) ([]Record, error) {
	soql, err := nameQuery(object, name, fields, lookupLimit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "invalid lookup", err)
	}
	path, err := c.dataPath(ctx, "/query/")
	if err != nil {
		return nil, err
	}

	var out struct {
		TotalSize int              `json:"totalSize"`
		Records   []map[string]any `json:"records"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, url.Values{"q": {soql}}, nil, &out); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(out.Records))
	for _, raw := range out.Records {
		delete(raw, "attributes")
		records = append(records, Record{
			ID:     str(raw["Id"]),
			Name:   str(raw["Name"]),
			Status: str(raw["Status"]),
			Fields: raw,
		})
	}
	return records, nil
}

// Create inserts a record and returns its id.
func (c *Client) Create(ctx context.Context, object string, values map[string]any) (string, error) {
	path, err := c.objectPath(ctx, object, "")
	if err != nil {
		return "", err
	}
	var out struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if _, err := c.do(ctx, http.MethodPost, path, nil, values, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", apperrors.New(apperrors.RemoteRejected, "Salesforce did not return a record id")
	}
	return out.ID, nil
}

// Update patches the given fields of one record.
func (c *Client) Update(ctx context.Context, object, id string, values map[string]any) error {
	path, err := c.objectPath(ctx, object, id)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, path, nil, values, nil)
	return err
}

// Delete removes one record.
func (c *Client) Delete(ctx context.Context, object, id string) error {
	path, err := c.objectPath(ctx, object, id)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	return err
}

func (c *Client) objectPath(ctx context.Context, object, id string) (string, error) {
	if !ValidIdent(object) {
		return "", apperrors.New(apperrors.Internal, fmt.Sprintf("invalid object name %q", object))
	}
	suffix := "/sobjects/" + object
	if id != "" {
		suffix += "/" + url.PathEscape(id)
	}
	return c.dataPath(ctx, suffix)
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
