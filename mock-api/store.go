package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"shopbridge/internal/canonical"
)

// Store keeps every record in one SQLite table, keyed by a shop-wide id the
// way the platform hands them out.
type Store struct {
	db *sql.DB
}

// parentRef scopes a nested collection such as products/632910392/variants.
type parentRef struct {
	Resource canonical.Resource
	ID       int64
}

type record struct {
	ID       int64
	Resource canonical.Resource
	Parent   parentRef
	Fields   map[string]any
}

// JSON returns the record as a REST payload.
func (r record) JSON() map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	if r.Parent.Resource != "" {
		out[r.Parent.Resource.Definition().Entity+"_id"] = r.Parent.ID
	}
	return out
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		resource TEXT NOT NULL,
		parent_resource TEXT NOT NULL DEFAULT '',
		parent_id INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.seed(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

type seedRecord struct {
	id     int64
	res    canonical.Resource
	parent parentRef
	fields map[string]any
}

var seedRecords = []seedRecord{
	{450789469, canonical.Orders, parentRef{}, map[string]any{"name": "#1001", "email": "bob.norman@mail.example.com", "financial_status": "paid", "total_price": "598.94", "currency": "USD"}},
	{450789470, canonical.Orders, parentRef{}, map[string]any{"name": "#1002", "email": "jane.doe@mail.example.com", "financial_status": "pending", "total_price": "45.00", "currency": "USD"}},
	{450789471, canonical.Orders, parentRef{}, map[string]any{"name": "#1003", "email": "bob.norman@mail.example.com", "financial_status": "refunded", "total_price": "12.50", "currency": "USD"}},
	{632910392, canonical.Products, parentRef{}, map[string]any{"title": "IPod Nano - 8GB", "vendor": "Apple", "product_type": "Cult Products", "status": "active"}},
	{921728736, canonical.Products, parentRef{}, map[string]any{"title": "IPod Touch 8GB", "vendor": "Apple", "product_type": "Cult Products", "status": "draft"}},
	{808950810, canonical.Variants, parentRef{canonical.Products, 632910392}, map[string]any{"title": "Pink", "price": "199.00", "sku": "IPOD2008PINK"}},
	{1046000778, canonical.FulfillmentOrders, parentRef{canonical.Orders, 450789469}, map[string]any{"status": "open", "request_status": "unsubmitted"}},
	{207119551, canonical.Customers, parentRef{}, map[string]any{"first_name": "Bob", "last_name": "Norman", "email": "bob.norman@mail.example.com"}},
	{4759306, canonical.Webhooks, parentRef{}, map[string]any{"topic": "orders/create", "address": "https://example.com/hooks", "format": "json"}},
}

func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, r := range seedRecords {
		body, err := json.Marshal(r.fields)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO records (id, resource, parent_resource, parent_id, body) VALUES (?, ?, ?, ?, ?)`,
			r.id, string(r.res), string(r.parent.Resource), r.parent.ID, string(body)); err != nil {
			return fmt.Errorf("seed %s %d: %w", r.res, r.id, err)
		}
	}
	return nil
}

// listOptions narrows List. AfterID is the cursor position.
type listOptions struct {
	Parent  parentRef
	AfterID int64
	IDs     []int64
	Limit   int
}

// List returns up to opts.Limit records ordered by id and whether more follow.
func (s *Store) List(ctx context.Context, res canonical.Resource, opts listOptions) ([]record, bool, error) {
	query, args := scopeClause(res, opts.Parent)
	if opts.AfterID > 0 {
		query += " AND id > ?"
		args = append(args, opts.AfterID)
	}
	if len(opts.IDs) > 0 {
		query += " AND id IN (?" + strings.Repeat(", ?", len(opts.IDs)-1) + ")"
		for _, id := range opts.IDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, opts.Limit+1)

	rows, err := s.db.QueryContext(ctx, `SELECT id, resource, parent_resource, parent_id, body FROM records WHERE `+query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	out := []record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(out) > opts.Limit {
		return out[:opts.Limit], true, nil
	}
	return out, false, nil
}

func (s *Store) Count(ctx context.Context, res canonical.Resource, parent parentRef) (int, error) {
	query, args := scopeClause(res, parent)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+query, args...).Scan(&n)
	return n, err
}

// Get returns sql.ErrNoRows when id is not a record of res.
func (s *Store) Get(ctx context.Context, res canonical.Resource, id int64) (record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, resource, parent_resource, parent_id, body FROM records WHERE resource = ? AND id = ?`,
		string(res), id)
	return scanRecord(row)
}

func (s *Store) Create(ctx context.Context, res canonical.Resource, parent parentRef, fields map[string]any) (record, error) {
	delete(fields, "id")
	body, err := json.Marshal(fields)
	if err != nil {
		return record{}, err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO records (resource, parent_resource, parent_id, body) VALUES (?, ?, ?, ?)`,
		string(res), string(parent.Resource), parent.ID, string(body))
	if err != nil {
		return record{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return record{}, err
	}
	return record{ID: id, Resource: res, Parent: parent, Fields: fields}, nil
}

// Update merges fields into the stored record.
func (s *Store) Update(ctx context.Context, res canonical.Resource, id int64, fields map[string]any) (record, error) {
	rec, err := s.Get(ctx, res, id)
	if err != nil {
		return record{}, err
	}
	for k, v := range fields {
		if k != "id" {
			rec.Fields[k] = v
		}
	}
	body, err := json.Marshal(rec.Fields)
	if err != nil {
		return record{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE records SET body = ? WHERE id = ?`, string(body), id); err != nil {
		return record{}, err
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, res canonical.Resource, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE resource = ? AND id = ?`, string(res), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scopeClause(res canonical.Resource, parent parentRef) (string, []any) {
	query := "resource = ?"
	args := []any{string(res)}
	if parent.Resource != "" {
		query += " AND parent_resource = ? AND parent_id = ?"
		args = append(args, string(parent.Resource), parent.ID)
	}
	return query, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (record, error) {
	var (
		rec            record
		res, parentRes string
		body           string
	)
	if err := row.Scan(&rec.ID, &res, &parentRes, &rec.Parent.ID, &body); err != nil {
		return record{}, err
	}
	rec.Resource = canonical.Resource(res)
	rec.Parent.Resource = canonical.Resource(parentRes)
	if err := json.Unmarshal([]byte(body), &rec.Fields); err != nil {
		return record{}, fmt.Errorf("decode record %d: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	return rec, nil
}
