package services

import (
	"sort"
	"testing"
	"time"

	"github.com/BradenHooton/loginserver/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatValue(t *testing.T) {
	tests := []struct {
		in      string
		want    characterStats
		wantErr bool
	}{
		{"3:1", characterStats{3, 1}, false},
		{"0:0", characterStats{0, 0}, false},
		{" 12 : 5 ", characterStats{12, 5}, false},
		{"3", characterStats{}, true},
		{"a:b", characterStats{}, true},
		{"-1:0", characterStats{}, true},
		{"1:-1", characterStats{}, true},
		{"", characterStats{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseStatValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCharacterStats(t *testing.T) {
	stats, skipped := parseCharacterStats(map[string]string{
		"RED":            "3:1",
		"malang":         "0:0",
		"12":             "4:4",
		"NONE_CHARACTER": "1:1",
		"2":              "1:1",
		"SHARK":          "bad",
	})

	assert.Equal(t, map[models.CharacterType]characterStats{
		models.CharacterRed:      {3, 1},
		models.CharacterMalang:   {0, 0},
		models.CharacterDinosaur: {4, 4},
	}, stats)

	sort.Strings(skipped)
	assert.Equal(t, []string{"2", "NONE_CHARACTER", "SHARK"}, skipped)
}

func TestApplyCharacterStats(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	owned := []*models.OwnedCharacter{
		{ID: 1, CharacterType: models.CharacterRed, PlayCount: 1, WinCount: 0},
		{ID: 2, CharacterType: models.CharacterShark, PlayCount: 2, WinCount: 2},
		{ID: 3, CharacterType: models.CharacterMask, PlayCount: 5, WinCount: 1},
	}

	matched := applyCharacterStats(owned, map[models.CharacterType]characterStats{
		models.CharacterRed:    {3, 1},
		models.CharacterShark:  {2, 2},
		models.CharacterMalang: {9, 9},
	}, now)

	require.Len(t, matched, 2)
	assert.Equal(t, int64(1), matched[0].ID)
	assert.Equal(t, 3, matched[0].PlayCount)
	assert.Equal(t, 1, matched[0].WinCount)
	assert.Equal(t, now, matched[0].UpdatedAt)

	// counters equal to the stored ones still refresh updated_at
	assert.Equal(t, int64(2), matched[1].ID)
	assert.Equal(t, 2, matched[1].PlayCount)
	assert.Equal(t, now, matched[1].UpdatedAt)

	assert.Equal(t, 5, owned[2].PlayCount)
	assert.True(t, owned[2].UpdatedAt.IsZero())
}
