package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
)

const listingColumns = `url, title, price_usd, odometer, username, phone_number,
	image_url, images_count, car_number, car_vin, datetime_found`

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// Upsert inserts the listing or fully replaces the row stored under its URL.
func (s *Store) Upsert(ctx context.Context, listing crawler.Listing) error {
	return s.upsert(ctx, s.pool, listing)
}

// UpsertBatch writes all listings in a single transaction. Any failure rolls
// the whole batch back.
func (s *Store) UpsertBatch(ctx context.Context, listings []crawler.Listing) (err error) {
	if len(listings) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback batch: %w", rbErr))
			}
		}
	}()
	for _, listing := range listings {
		if err = s.upsert(ctx, tx, listing); err != nil {
			return err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, db execer, l crawler.Listing) error {
	if l.URL == "" {
		return fmt.Errorf("listing url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	price_usd = EXCLUDED.price_usd,
	odometer = EXCLUDED.odometer,
	username = EXCLUDED.username,
	phone_number = EXCLUDED.phone_number,
	image_url = EXCLUDED.image_url,
	images_count = EXCLUDED.images_count,
	car_number = EXCLUDED.car_number,
	car_vin = EXCLUDED.car_vin,
	datetime_found = EXCLUDED.datetime_found`, s.table, listingColumns)

	if _, err := db.Exec(ctx, query, listingArgs(l)...); err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.URL, err)
	}
	return nil
}

// Get returns the listing stored under url or crawler.ErrNotFound.
func (s *Store) Get(ctx context.Context, url string) (crawler.Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE url = $1`, listingColumns, s.table)
	listing, err := scanListing(s.pool.QueryRow(ctx, query, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Listing{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

// Each streams every stored listing ordered by url. Iteration stops at the
// first error returned by fn.
func (s *Store) Each(ctx context.Context, fn func(crawler.Listing) error) error {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY url`, listingColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return fmt.Errorf("scan listing: %w", err)
		}
		if err := fn(listing); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate listings: %w", err)
	}
	return nil
}

// Count returns the number of stored listings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func listingArgs(l crawler.Listing) []any {
	return []any{
		l.URL,
		l.Title,
		l.PriceUSD,
		l.Odometer,
		l.Username,
		l.PhoneNumber,
		l.ImageURL,
		l.ImagesCount,
		l.CarNumber,
		l.CarVIN,
		l.DatetimeFound,
	}
}

func scanListing(row pgx.Row) (crawler.Listing, error) {
	var l crawler.Listing
	err := row.Scan(
		&l.URL,
		&l.Title,
		&l.PriceUSD,
		&l.Odometer,
		&l.Username,
		&l.PhoneNumber,
		&l.ImageURL,
		&l.ImagesCount,
		&l.CarNumber,
		&l.CarVIN,
		&l.DatetimeFound,
	)
	return l, err
}
