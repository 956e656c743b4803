package gamification

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS
// ══════════════════════════════════════════════════════════════════════════════

// LevelTier is one row of the static level table.
type LevelTier struct {
	Level     int    `json:"level"`
	MinPoints int    `json:"minPoints"`
	Name      string `json:"name"`
}

// MinLevel and MaxLevel bound every stored level.
const (
	MinLevel = 1
	MaxLevel = 8
)

// levelTable is ordered by ascending MinPoints. Never mutated after init.
var levelTable = [...]LevelTier{
	{Level: 1, MinPoints: 0, Name: "Iniciante"},
	{Level: 2, MinPoints: 100, Name: "Aprendiz"},
	{Level: 3, MinPoints: 300, Name: "Motorista"},
	{Level: 4, MinPoints: 600, Name: "Condutor"},
	{Level: 5, MinPoints: 1000, Name: "Piloto"},
	{Level: 6, MinPoints: 1500, Name: "Experiente"},
	{Level: 7, MinPoints: 2500, Name: "Mestre do Volante"},
	{Level: 8, MinPoints: 4000, Name: "Lenda da Estrada"},
}

func init() {
	if err := validateLevelTable(levelTable[:]); err != nil {
		panic(err)
	}
}

func validateLevelTable(tiers []LevelTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("level table is empty")
	}
	if tiers[0].Level != MinLevel || tiers[0].MinPoints != 0 {
		return fmt.Errorf("level table must start at level %d with 0 points", MinLevel)
	}
	names := make(map[string]struct{}, len(tiers))
	for i, t := range tiers {
		if t.Level != i+1 {
			return fmt.Errorf("level %d out of sequence at index %d", t.Level, i)
		}
		if i > 0 && t.MinPoints <= tiers[i-1].MinPoints {
			return fmt.Errorf("level %d threshold %d is not above previous", t.Level, t.MinPoints)
		}
		if _, dup := names[t.Name]; dup {
			return fmt.Errorf("duplicate level name %q", t.Name)
		}
		names[t.Name] = struct{}{}
	}
	return nil
}

// Levels returns a copy of the level table.
func Levels() []LevelTier {
	out := make([]LevelTier, len(levelTable))
	copy(out, levelTable[:])
	return out
}

// ResolveLevel returns the tier with the greatest threshold not exceeding points.
// Negative balances resolve to the first tier.
func ResolveLevel(points int) LevelTier {
	current := levelTable[0]
	for _, tier := range levelTable {
		if points >= tier.MinPoints {
			current = tier
		}
	}
	return current
}

// NextLevel returns the tier following the one points resolves to.
// The second value is false at the top tier.
func NextLevel(points int) (LevelTier, bool) {
	current := ResolveLevel(points)
	if current.Level >= MaxLevel {
		return LevelTier{}, false
	}
	return levelTable[current.Level], true
}

// TierFor returns the tier for a level number.
func TierFor(level int) (LevelTier, bool) {
	if level < MinLevel || level > MaxLevel {
		return LevelTier{}, false
	}
	return levelTable[level-1], true
}

// PointsToNextLevel returns how many points are missing for the next tier, 0 at the top.
func PointsToNextLevel(points int) int {
	next, ok := NextLevel(points)
	if !ok {
		return 0
	}
	return next.MinPoints - points
}
