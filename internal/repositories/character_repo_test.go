package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/loginserver/internal/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var characterCols = []string{"id", "account_id", "character_type", "play_count", "win_count", "purchased_at", "updated_at"}

func TestCharacterRepository_ListByAccount(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM user_characters WHERE account_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows(characterCols).
			AddRow(int64(1), int64(5), 1, 10, 4, ts, ts).
			AddRow(int64(2), int64(5), 3, 2, 0, ts, ts))

	got, err := NewCharacterRepository(mock).ListByAccount(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.CharacterRed, got[0].CharacterType)
	assert.Equal(t, 10, got[0].PlayCount)
	assert.Equal(t, 4, got[0].WinCount)
	assert.Equal(t, models.CharacterShark, got[1].CharacterType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCharacterRepository_ListByAccount_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM user_characters`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows(characterCols))

	got, err := NewCharacterRepository(mock).ListByAccount(context.Background(), 5)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCharacterRepository_UpdateStats(t *testing.T) {
	ts := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	rows := func() []*models.OwnedCharacter {
		return []*models.OwnedCharacter{
			{ID: 1, AccountID: 5, CharacterType: models.CharacterRed, PlayCount: 12, WinCount: 5, UpdatedAt: ts},
			{ID: 2, AccountID: 5, CharacterType: models.CharacterShark, PlayCount: 3, WinCount: 1, UpdatedAt: ts},
		}
	}

	tests := []struct {
		name      string
		input     []*models.OwnedCharacter
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
	}{
		{
			name:  "all rows in one transaction",
			input: rows(),
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE user_characters`).
					WithArgs(12, 5, ts, int64(1)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectExec(`UPDATE user_characters`).
					WithArgs(3, 1, ts, int64(2)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectCommit()
			},
		},
		{
			name:  "second update fails and nothing commits",
			input: rows(),
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE user_characters`).
					WithArgs(12, 5, ts, int64(1)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectExec(`UPDATE user_characters`).
					WithArgs(3, 1, ts, int64(2)).
					WillReturnError(errors.New("deadlock detected"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name:  "missing row rolls back",
			input: rows()[:1],
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE user_characters`).
					WithArgs(12, 5, ts, int64(1)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name:      "empty input is a no-op",
			input:     nil,
			setupMock: func(mock pgxmock.PgxPoolIface) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			err = NewCharacterRepository(mock).UpdateStats(context.Background(), tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
