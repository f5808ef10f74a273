package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/draftly/publisher/internal/models"
)

type ConnectionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Connection, error)
	CheckByUserID(ctx context.Context, connectionID, userID int64) (bool, error)
	ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Connection, error)
	SetToken(ctx context.Context, id int64, conn *models.Connection) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, user_id, platform, account_name, account_username, settings, access_token, refresh_token, token_expires_at, is_active, created_at, updated_at`

func (r *connectionRepository) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	conn, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return conn, nil
}

func (r *connectionRepository) CheckByUserID(ctx context.Context, connectionID, userID int64) (bool, error) {
	query := `SELECT 1 FROM connections WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, connectionID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *connectionRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE is_active = true AND token_expires_at BETWEEN $1 AND $2`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (r *connectionRepository) SetToken(ctx context.Context, id int64, conn *models.Connection) error {
	query := `
		UPDATE connections
		SET access_token = $1,
			refresh_token = $2,
			token_expires_at = $3,
			updated_at = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(ctx, query, conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var settings []byte

	err := row.Scan(&conn.ID, &conn.UserID, &conn.Platform, &conn.AccountName, &conn.AccountUsername,
		&settings, &conn.AccessToken, &conn.RefreshToken, &conn.TokenExpiresAt, &conn.IsActive,
		&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &conn.Settings); err != nil {
			return nil, err
		}
	}

	return &conn, nil
}
