package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cryptoshelf/shelfsync/internal/api/dto"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

func (s *Server) registerTableRoutes() {
	writes := huma.Middlewares{s.writeLimit}

	huma.Register(s.api, huma.Operation{
		OperationID: "selectRows",
		Method:      http.MethodPost,
		Path:        "/api/v1/tables/{table}/select",
		Summary:     "Select rows",
		Description: "Returns every row matching the filter, optionally ordered and limited",
		Tags:        []string{"Tables"},
	}, s.handleSelect)

	huma.Register(s.api, huma.Operation{
		OperationID: "selectOne",
		Method:      http.MethodPost,
		Path:        "/api/v1/tables/{table}/one",
		Summary:     "Select one row",
		Description: "Returns the single row matching the filter, or NOT_FOUND",
		Tags:        []string{"Tables"},
	}, s.handleSelectOne)

	huma.Register(s.api, huma.Operation{
		OperationID: "upsertRow",
		Method:      http.MethodPost,
		Path:        "/api/v1/tables/{table}/upsert",
		Summary:     "Insert or merge a row",
		Description: "Inserts the row or replaces the non-key columns of the row with the same conflict key",
		Tags:        []string{"Tables"},
		Middlewares: writes,
	}, s.handleUpsert)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateRows",
		Method:      http.MethodPost,
		Path:        "/api/v1/tables/{table}/update",
		Summary:     "Patch rows",
		Description: "Sets the patch columns on every row matching the filter and returns the new rows",
		Tags:        []string{"Tables"},
		Middlewares: writes,
	}, s.handleUpdate)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteRows",
		Method:      http.MethodPost,
		Path:        "/api/v1/tables/{table}/delete",
		Summary:     "Delete rows",
		Description: "Deletes every row matching the filter and returns the removed rows",
		Tags:        []string{"Tables"},
		Middlewares: writes,
	}, s.handleDelete)
}

func (s *Server) handleSelect(ctx context.Context, in *dto.SelectInput) (*dto.RowsOutput, error) {
	rows, err := s.store.FetchAll(ctx, store.Table(in.Table), in.Body.Query())
	if err != nil {
		return nil, toAPIError(err)
	}
	return &dto.RowsOutput{Body: dto.RowsResponse{Rows: nonNil(rows)}}, nil
}

func (s *Server) handleSelectOne(ctx context.Context, in *dto.FetchOneInput) (*dto.RowOutput, error) {
	row, err := s.store.FetchOne(ctx, store.Table(in.Table), in.Body.Filter)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &dto.RowOutput{Body: dto.RowResponse{Row: row}}, nil
}

func (s *Server) handleUpsert(ctx context.Context, in *dto.UpsertInput) (*dto.ChangeOutput, error) {
	change, err := s.store.Upsert(ctx, store.Table(in.Table), in.Body.Row, in.Body.Conflict)
	if err != nil {
		return nil, toAPIError(err)
	}
	s.publish(ctx, change)
	return &dto.ChangeOutput{Body: change}, nil
}

func (s *Server) handleUpdate(ctx context.Context, in *dto.UpdateInput) (*dto.RowsOutput, error) {
	table := store.Table(in.Table)
	rows, err := s.store.Update(ctx, table, in.Body.Filter, in.Body.Patch)
	if err != nil {
		return nil, toAPIError(err)
	}
	s.publish(ctx, changes(table, store.OpUpdate, rows)...)
	return &dto.RowsOutput{Body: dto.RowsResponse{Rows: nonNil(rows)}}, nil
}

func (s *Server) handleDelete(ctx context.Context, in *dto.DeleteInput) (*dto.RowsOutput, error) {
	table := store.Table(in.Table)
	rows, err := s.store.Delete(ctx, table, in.Body.Filter)
	if err != nil {
		return nil, toAPIError(err)
	}
	s.publish(ctx, changes(table, store.OpDelete, rows)...)
	return &dto.RowsOutput{Body: dto.RowsResponse{Rows: nonNil(rows)}}, nil
}

// changes builds one change per affected row.
func changes(table store.Table, op store.Op, rows []store.Row) []store.Change {
	at := time.Now().UTC()
	out := make([]store.Change, len(rows))
	for i, row := range rows {
		out[i] = store.Change{At: at, Table: table, Op: op, Row: row}
	}
	return out
}

func nonNil(rows []store.Row) []store.Row {
	if rows == nil {
		return []store.Row{}
	}
	return rows
}
