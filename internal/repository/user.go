package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/bananagen/backend/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrRefCodeTaken = errors.New("ref code already taken")
)

func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramUserID string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE telegram_user_id = $1", telegramUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE username = $1", username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByRefCode(ctx context.Context, refCode string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE ref_code = $1", refCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a brand-new user together with the initial-grant audit
// row. The unique constraints are mapped to sentinel errors so the caller can
// retry a colliding ref code or re-read a concurrently created user.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertUserTx(ctx, tx, user); err != nil {
		return err
	}

	if user.Balance != 0 {
		err = insertTransactionTx(ctx, tx, user.TelegramUserID, user.Balance,
			model.TransactionTypeInitialGrant, "Стартовый баланс", nil, 0, user.Balance)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertUserTx(ctx context.Context, tx *sqlx.Tx, user *model.User) error {
	query := `
		INSERT INTO users (telegram_user_id, chat_id, username, first_name, last_name, balance, ref_code, referred_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		user.TelegramUserID,
		user.ChatID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Balance,
		user.RefCode,
		user.ReferredBy,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapUniqueViolation(err)
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_ref_code_key":
			return ErrRefCodeTaken
		case "users_telegram_user_id_key":
			return ErrUserExists
		}
	}
	return err
}

// UpdateUserContact refreshes the delivery target and display names on repeat
// contact. Balance and ref code are never touched here.
func (r *Repository) UpdateUserContact(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			chat_id = $2,
			username = $3,
			first_name = $4,
			last_name = $5,
			updated_at = NOW()
		WHERE telegram_user_id = $1`

	_, err := r.db.ExecContext(ctx, query,
		user.TelegramUserID,
		user.ChatID,
		user.Username,
		user.FirstName,
		user.LastName,
	)
	return err
}

// SetTermsAccepted stamps the acceptance time once; repeat calls are no-ops.
func (r *Repository) SetTermsAccepted(ctx context.Context, telegramUserID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET terms_accepted_at = $2, updated_at = NOW()
		 WHERE telegram_user_id = $1 AND terms_accepted_at IS NULL`,
		telegramUserID, at)
	return err
}

func (r *Repository) ListUsersWithReferrals(ctx context.Context) ([]model.UserWithReferrals, error) {
	var users []model.UserWithReferrals
	query := `
		SELECT u.*, COALESCE(r.cnt, 0) AS referred_count
		FROM users u
		LEFT JOIN (
			SELECT referrer_user_id, COUNT(*) AS cnt
			FROM referrals
			GROUP BY referrer_user_id
		) r ON r.referrer_user_id = u.telegram_user_id
		ORDER BY u.created_at DESC`
	err := r.db.SelectContext(ctx, &users, query)
	return users, err
}

// DeleteUserByTelegramID removes the user and every referral row the user
// appears in, on either side.
func (r *Repository) DeleteUserByTelegramID(ctx context.Context, telegramUserID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM referrals WHERE referrer_user_id = $1 OR referred_user_id = $1`, telegramUserID)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE telegram_user_id = $1`, telegramUserID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *Repository) DeleteUserByUsername(ctx context.Context, username string) (bool, error) {
	user, err := r.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return r.DeleteUserByTelegramID(ctx, user.TelegramUserID)
}

// DeleteAllUsersExcept purges every user whose telegram id is not in keep,
// cascading to referral rows. Returns the number of users removed.
func (r *Repository) DeleteAllUsersExcept(ctx context.Context, keep []string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	refDelete := `DELETE FROM referrals`
	userDelete := `DELETE FROM users`
	var refArgs, userArgs []interface{}
	if len(keep) > 0 {
		var query string
		query, refArgs, err = sqlx.In(
			`DELETE FROM referrals WHERE referrer_user_id NOT IN (?) OR referred_user_id NOT IN (?)`,
			keep, keep)
		if err != nil {
			return 0, err
		}
		refDelete = tx.Rebind(query)

		query, userArgs, err = sqlx.In(`DELETE FROM users WHERE telegram_user_id NOT IN (?)`, keep)
		if err != nil {
			return 0, err
		}
		userDelete = tx.Rebind(query)
	}

	if _, err := tx.ExecContext(ctx, refDelete, refArgs...); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, userDelete, userArgs...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}
