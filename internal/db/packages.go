package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"feedprobe/internal/feed"
)

const packageColumns = `id, package_id, version, title, description, authors, tags,
        sha256, size_bytes, blob_path, listed, created_at, visible_at`

// uniqueViolation is the Postgres error code for unique constraint failures
const uniqueViolation = "23505"

// CreatePackage stores a new package version
func (db *DB) CreatePackage(ctx context.Context, pkg Package) (*Package, error) {
	query := `
        INSERT INTO packages
        (package_id, version, title, description, authors, tags, sha256, size_bytes, blob_path, listed, created_at, visible_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING ` + packageColumns

	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = db.now()
	}
	if pkg.VisibleAt.IsZero() {
		pkg.VisibleAt = pkg.CreatedAt
	}
	if pkg.Tags == nil {
		pkg.Tags = pq.StringArray{}
	}

	var created Package
	err := db.GetContext(ctx, &created, query,
		pkg.PackageID,
		pkg.Version,
		pkg.Title,
		pkg.Description,
		pkg.Authors,
		pkg.Tags,
		pkg.SHA256,
		pkg.SizeBytes,
		pkg.BlobPath,
		pkg.Listed,
		pkg.CreatedAt,
		pkg.VisibleAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, pkg.Identity())
		}
		return nil, err
	}

	return &created, nil
}

// GetPackage retrieves a visible package version, listed or not
func (db *DB) GetPackage(ctx context.Context, id feed.Identity) (*Package, error) {
	query := `
        SELECT ` + packageColumns + `
        FROM packages
        WHERE lower(package_id) = lower($1) AND lower(version) = lower($2) AND visible_at <= $3`

	var pkg Package
	err := db.GetContext(ctx, &pkg, query, id.ID, id.Version, db.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &pkg, nil
}

// FindPackages returns visible, listed packages matching q
func (db *DB) FindPackages(ctx context.Context, q Query) ([]Package, error) {
	sqlQuery, args := buildFindQuery(q, db.now())

	var results []Package
	if err := db.SelectContext(ctx, &results, sqlQuery, args...); err != nil {
		return nil, err
	}

	return results, nil
}

// UnlistPackage hides a visible package from collection queries
func (db *DB) UnlistPackage(ctx context.Context, id feed.Identity) error {
	query := `
        UPDATE packages SET listed = FALSE
        WHERE lower(package_id) = lower($1) AND lower(version) = lower($2) AND visible_at <= $3`

	res, err := db.ExecContext(ctx, query, id.ID, id.Version, db.now())
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func buildFindQuery(q Query, now time.Time) (string, []interface{}) {
	sqlQuery := `
        SELECT ` + packageColumns + `
        FROM packages
        WHERE listed AND visible_at <= $1`

	args := []interface{}{now}
	argCount := 1

	if q.ID != "" {
		argCount++
		sqlQuery += fmt.Sprintf(" AND lower(package_id) = lower($%d)", argCount)
		args = append(args, q.ID)
	}

	if q.Version != "" {
		argCount++
		sqlQuery += fmt.Sprintf(" AND lower(version) = lower($%d)", argCount)
		args = append(args, q.Version)
	}

	if q.IDPrefix != "" {
		argCount++
		sqlQuery += fmt.Sprintf(" AND lower(package_id) LIKE $%d", argCount)
		args = append(args, likePrefix(q.IDPrefix))
	}

	for _, prefix := range q.ExcludeIDPrefixes {
		argCount++
		sqlQuery += fmt.Sprintf(" AND lower(package_id) NOT LIKE $%d", argCount)
		args = append(args, likePrefix(prefix))
	}

	sqlQuery += " ORDER BY lower(package_id), created_at"

	if q.Limit > 0 {
		argCount++
		sqlQuery += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, q.Limit)
	}

	return sqlQuery, args
}

// likePrefix escapes LIKE metacharacters and appends the wildcard
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(prefix)) + "%"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
