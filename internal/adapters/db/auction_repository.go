package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"liveauction-service/internal/domain/auction"
	"liveauction-service/internal/domain/shared"

	"github.com/google/uuid"
)

const auctionColumns = `id, title, description, base_price, current_price, expiration_time, seller_id, highest_bidder, status, created_at, updated_at`

// AuctionRepository implements the auction store on PostgreSQL. All price
// and status mutations are conditional UPDATEs so concurrent writers
// serialize on the row condition instead of a lock.
type AuctionRepository struct {
	conn *Connection
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(conn *Connection) *AuctionRepository {
	return &AuctionRepository{conn: conn}
}

// Create creates a new auction
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		a.ID,
		a.Title,
		a.Description,
		a.BasePrice,
		a.CurrentPrice,
		a.ExpirationTime,
		a.SellerID,
		highestBidderValue(a.HighestBidder),
		a.Status,
		a.CreatedAt,
		a.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

// GetByID retrieves an auction by ID
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	row := r.conn.GetDB().QueryRowContext(ctx, query, id)
	a, err := scanAuction(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	return a, nil
}

// List retrieves auctions with optional status and seller filters
func (r *AuctionRepository) List(ctx context.Context, status *auction.Status, sellerID *uuid.UUID, page, pageSize int) ([]*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`

	var clauses []string
	var args []interface{}

	if status != nil {
		args = append(args, *status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if sellerID != nil {
		args = append(args, *sellerID)
		clauses = append(clauses, fmt.Sprintf("seller_id = $%d", len(args)))
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	args = append(args, pageSize)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, (page-1)*pageSize)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// ListActive retrieves every active auction, for startup reconciliation
func (r *AuctionRepository) ListActive(ctx context.Context) ([]*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = 'active'`

	rows, err := r.conn.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// CompareAndSetPrice advances current_price and highest_bidder only if the
// price is unchanged since it was read and the auction is still active.
func (r *AuctionRepository) CompareAndSetPrice(ctx context.Context, id uuid.UUID, expectedPrice, newPrice float64, bidder uuid.UUID) error {
	query := `
		UPDATE auctions
		SET current_price = $2, highest_bidder = $3, updated_at = $4
		WHERE id = $1 AND current_price = $5 AND status = 'active'
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, id, newPrice, bidder, time.Now(), expectedPrice)
	if err != nil {
		return fmt.Errorf("failed to update auction price: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrPriceConflict
	}

	return nil
}

// MarkEnded transitions status from active to ended. Exactly one of any
// number of concurrent callers sees true.
func (r *AuctionRepository) MarkEnded(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE auctions
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, id, auction.StatusEnded, time.Now(), auction.StatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to mark auction ended: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// SetStatus transitions status conditioned on its current value
func (r *AuctionRepository) SetStatus(ctx context.Context, id uuid.UUID, from, to auction.Status) (bool, error) {
	query := `
		UPDATE auctions
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, id, to, time.Now(), from)
	if err != nil {
		return false, fmt.Errorf("failed to set auction status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// UpdateExpiration moves the expiration time of an active auction
func (r *AuctionRepository) UpdateExpiration(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	query := `
		UPDATE auctions
		SET expiration_time = $2, updated_at = $3
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, id, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update auction expiration: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrAuctionNotActive
	}

	return nil
}

func highestBidderValue(bidder *uuid.UUID) interface{} {
	if bidder == nil {
		return nil
	}
	return *bidder
}

func scanAuction(scan func(dest ...interface{}) error) (*auction.Auction, error) {
	var a auction.Auction
	var highestBidder uuid.NullUUID

	err := scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.BasePrice,
		&a.CurrentPrice,
		&a.ExpirationTime,
		&a.SellerID,
		&highestBidder,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if highestBidder.Valid {
		a.HighestBidder = &highestBidder.UUID
	}

	return &a, nil
}

func collectAuctions(rows *sql.Rows) ([]*auction.Auction, error) {
	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return auctions, nil
}
