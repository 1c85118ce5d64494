package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/loginserver/internal/database"
	"github.com/BradenHooton/loginserver/internal/models"
	"github.com/jackc/pgx/v5"
)

const characterColumns = `id, account_id, character_type, play_count, win_count, purchased_at, updated_at`

type CharacterRepository struct {
	db database.TxBeginner
}

func NewCharacterRepository(db database.TxBeginner) *CharacterRepository {
	return &CharacterRepository{db: db}
}

func scanCharacterRow(scanner rowScanner) (*models.OwnedCharacter, error) {
	var c models.OwnedCharacter
	var characterType int

	err := scanner.Scan(&c.ID, &c.AccountID, &characterType, &c.PlayCount, &c.WinCount, &c.PurchasedAt, &c.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	c.CharacterType = models.CharacterType(characterType)
	return &c, nil
}

func (r *CharacterRepository) ListByAccount(ctx context.Context, accountID int64) ([]*models.OwnedCharacter, error) {
	query := `SELECT ` + characterColumns + ` FROM user_characters WHERE account_id = $1 ORDER BY character_type`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	characters := make([]*models.OwnedCharacter, 0)
	for rows.Next() {
		c, err := scanCharacterRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		characters = append(characters, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return characters, nil
}

// UpdateStats writes play/win counters for all given rows in one transaction
func (r *CharacterRepository) UpdateStats(ctx context.Context, characters []*models.OwnedCharacter) error {
	if len(characters) == 0 {
		return nil
	}

	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		for _, c := range characters {
			result, err := tx.Exec(ctx,
				`UPDATE user_characters SET play_count = $1, win_count = $2, updated_at = $3 WHERE id = $4`,
				c.PlayCount, c.WinCount, c.UpdatedAt, c.ID,
			)
			if err != nil {
				return database.MapPostgresError(err)
			}
			if result.RowsAffected() == 0 {
				return fmt.Errorf("character %d: %w", c.ID, models.ErrNotFound)
			}
		}
		return nil
	})
}

func insertCharacter(ctx context.Context, q database.Querier, c *models.OwnedCharacter) error {
	query := `
		INSERT INTO user_characters (account_id, character_type, play_count, win_count, purchased_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if err := q.QueryRow(ctx, query,
		c.AccountID, int(c.CharacterType), c.PlayCount, c.WinCount, c.PurchasedAt, c.UpdatedAt,
	).Scan(&c.ID); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}
