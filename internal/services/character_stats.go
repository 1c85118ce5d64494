package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/loginserver/internal/models"
)

// characterStats is one cached "playCount:winCount" entry
type characterStats struct {
	PlayCount int
	WinCount  int
}

func parseStatValue(value string) (characterStats, error) {
	play, win, ok := strings.Cut(value, ":")
	if !ok {
		return characterStats{}, fmt.Errorf("missing separator in %q", value)
	}

	playCount, err := strconv.Atoi(strings.TrimSpace(play))
	if err != nil || playCount < 0 {
		return characterStats{}, fmt.Errorf("invalid play count in %q", value)
	}
	winCount, err := strconv.Atoi(strings.TrimSpace(win))
	if err != nil || winCount < 0 {
		return characterStats{}, fmt.Errorf("invalid win count in %q", value)
	}

	return characterStats{PlayCount: playCount, WinCount: winCount}, nil
}

// parseCharacterStats decodes the cached hash. Fields that do not name a real
// character or whose value is malformed are returned in skipped.
func parseCharacterStats(fields map[string]string) (map[models.CharacterType]characterStats, []string) {
	stats := make(map[models.CharacterType]characterStats, len(fields))
	var skipped []string

	for field, value := range fields {
		characterType, err := models.ParseCharacterType(field)
		if err != nil || characterType == models.CharacterNone {
			skipped = append(skipped, field)
			continue
		}

		parsed, err := parseStatValue(value)
		if err != nil {
			skipped = append(skipped, field)
			continue
		}

		stats[characterType] = parsed
	}

	return stats, skipped
}

// applyCharacterStats copies cached counters onto every owned row that has a
// cache entry and stamps UpdatedAt. Those rows are returned.
func applyCharacterStats(owned []*models.OwnedCharacter, stats map[models.CharacterType]characterStats, now time.Time) []*models.OwnedCharacter {
	var matched []*models.OwnedCharacter

	for _, c := range owned {
		s, ok := stats[c.CharacterType]
		if !ok {
			continue
		}
		c.PlayCount = s.PlayCount
		c.WinCount = s.WinCount
		c.UpdatedAt = now
		matched = append(matched, c)
	}

	return matched
}
