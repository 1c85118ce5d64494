package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CharacterType identifies one of the fixed playable characters.
// Values are persisted, so they must never be renumbered.
type CharacterType int

const (
	CharacterNone        CharacterType = 0
	CharacterRed         CharacterType = 1
	CharacterShark       CharacterType = 3
	CharacterMalang      CharacterType = 5
	CharacterFroggy      CharacterType = 7
	CharacterPink        CharacterType = 8
	CharacterSwimGlasses CharacterType = 9
	CharacterMask        CharacterType = 10
	CharacterDinosaur    CharacterType = 12
	CharacterPinkSlime   CharacterType = 13
)

// DefaultCharacterType is granted to every account at registration
const DefaultCharacterType = CharacterRed

var characterNames = map[CharacterType]string{
	CharacterNone:        "NONE_CHARACTER",
	CharacterRed:         "RED",
	CharacterShark:       "SHARK",
	CharacterMalang:      "MALANG",
	CharacterFroggy:      "FROGGY",
	CharacterPink:        "PINK",
	CharacterSwimGlasses: "SWIM_GLASSES",
	CharacterMask:        "MASK",
	CharacterDinosaur:    "DINOSAUR",
	CharacterPinkSlime:   "PINK_SLIME",
}

func (c CharacterType) String() string {
	if name, ok := characterNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CharacterType(%d)", int(c))
}

// Valid reports whether c is one of the known character types
func (c CharacterType) Valid() bool {
	_, ok := characterNames[c]
	return ok
}

// ParseCharacterType accepts either the character name (case-insensitive)
// or its numeric value.
func ParseCharacterType(s string) (CharacterType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		c := CharacterType(n)
		if !c.Valid() {
			return CharacterNone, fmt.Errorf("unknown character type: %d", n)
		}
		return c, nil
	}

	upper := strings.ToUpper(s)
	for c, name := range characterNames {
		if name == upper {
			return c, nil
		}
	}
	return CharacterNone, fmt.Errorf("unknown character type: %q", s)
}

// OwnedCharacter tracks one character owned by an account and its play statistics
type OwnedCharacter struct {
	ID            int64
	AccountID     int64
	CharacterType CharacterType
	PlayCount     int
	WinCount      int
	PurchasedAt   time.Time
	UpdatedAt     time.Time
}
