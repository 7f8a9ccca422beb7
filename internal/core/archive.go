package core

// archive.go keeps the last raw copy of every document that could not be
// preserved normally, keyed by the "Invalid"-prefixed API name.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/evesync/internal/database"
)

// InvalidPrefix is prepended to the API name of archived documents.
const InvalidPrefix = "Invalid"

// RawDocument is one archived document.
type RawDocument struct {
	Section     string    `json:"section"`
	API         string    `json:"api"`
	OwnerID     int64     `json:"owner_id"`
	ResourceKey string    `json:"resource_key"`
	Reason      string    `json:"reason"`
	Body        string    `json:"body"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Archive reads and writes util_raw_document.
type Archive struct {
	db *database.DB
}

// NewArchive creates an Archive.
func NewArchive(db *database.DB) *Archive {
	return &Archive{db: db}
}

// Store upserts doc, replacing the previous copy for the same identity.
func (a *Archive) Store(ctx context.Context, doc RawDocument) error {
	query, args, err := a.db.Dialect.Builder().
		Insert("util_raw_document").
		Columns("section", "api", "owner_id", "resource_key", "reason", "body", "fetched_at").
		Values(doc.Section, doc.API, doc.OwnerID, doc.ResourceKey, doc.Reason, doc.Body, doc.FetchedAt.UTC()).
		Suffix("ON CONFLICT (section, api, owner_id) DO UPDATE SET " +
			"resource_key = EXCLUDED.resource_key, " +
			"reason = EXCLUDED.reason, " +
			"body = EXCLUDED.body, " +
			"fetched_at = EXCLUDED.fetched_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build raw document upsert: %w", err)
	}

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store raw document %s/%s: %w", doc.Section, doc.API, err)
	}
	return nil
}

func (a *Archive) selectDocs() sq.SelectBuilder {
	return a.db.Dialect.Builder().
		Select("section", "api", "owner_id", "resource_key", "reason", "body", "fetched_at").
		From("util_raw_document")
}

func scanRawDocument(row interface{ Scan(...any) error }) (RawDocument, error) {
	var d RawDocument
	err := row.Scan(&d.Section, &d.API, &d.OwnerID, &d.ResourceKey, &d.Reason, &d.Body, &d.FetchedAt)
	return d, err
}

// Get returns the archived document for an identity.
func (a *Archive) Get(ctx context.Context, section, api string, ownerID int64) (RawDocument, bool, error) {
	query, args, err := a.selectDocs().
		Where(sq.Eq{"section": section, "api": api, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return RawDocument{}, false, fmt.Errorf("build raw document query: %w", err)
	}

	doc, err := scanRawDocument(a.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return RawDocument{}, false, nil
	}
	if err != nil {
		return RawDocument{}, false, fmt.Errorf("read raw document: %w", err)
	}
	return doc, true, nil
}

// Recent returns up to limit archived documents, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]RawDocument, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := a.selectDocs().
		OrderBy("fetched_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build raw document list: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list raw documents: %w", err)
	}
	defer rows.Close()

	var docs []RawDocument
	for rows.Next() {
		d, err := scanRawDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
