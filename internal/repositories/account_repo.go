package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/loginserver/internal/database"
	"github.com/BradenHooton/loginserver/internal/models"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, email, display_name, password_hash, is_active, created_at, last_login_at, rating, last_selected_character`

type AccountRepository struct {
	db database.TxBeginner
}

func NewAccountRepository(db database.TxBeginner) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var lastSelected int

	err := scanner.Scan(
		&account.ID, &account.Email, &account.DisplayName, &account.PasswordHash,
		&account.IsActive, &account.CreatedAt, &account.LastLoginAt,
		&account.Rating, &lastSelected,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.LastSelectedCharacter = models.CharacterType(lastSelected)
	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.db.QueryRow(ctx, query, email))
}

func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

func (r *AccountRepository) ExistsByDisplayName(ctx context.Context, displayName string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE display_name = $1)`, displayName).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// CreateWithDefaultCharacter inserts the account and its starting character in
// one transaction. Neither row survives if either insert fails.
func (r *AccountRepository) CreateWithDefaultCharacter(ctx context.Context, account *models.Account, character *models.OwnedCharacter) (*models.Account, error) {
	var created *models.Account

	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		created, err = insertAccount(ctx, tx, account)
		if err != nil {
			return err
		}

		character.AccountID = created.ID
		if err := insertCharacter(ctx, tx, character); err != nil {
			return fmt.Errorf("failed to grant default character: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func insertAccount(ctx context.Context, q database.Querier, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (email, display_name, password_hash, is_active, created_at, rating, last_selected_character)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + accountColumns

	return scanAccountRow(q.QueryRow(ctx, query,
		account.Email, account.DisplayName, account.PasswordHash, account.IsActive,
		account.CreatedAt, account.Rating, int(account.LastSelectedCharacter),
	))
}

func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET last_login_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
