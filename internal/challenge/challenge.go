// ABOUTME: Emoji picture-matching challenge generation for joining users
// ABOUTME: Picks a target concept and shuffles its emoji pool so the answer position is unpredictable

package challenge

import (
	"math/rand/v2"
	"slices"
	"time"
)

// Challenge is one generated picture-matching task: a target concept plus a
// shuffled set of emoji options, exactly one of which matches the concept.
type Challenge struct {
	Concept string   // what the user is asked to pick
	Options []string // shuffled emoji labels shown to the user
	Correct string   // the option that matches the concept
}

// Level describes one difficulty level.
type Level struct {
	ObjectsCount int           // how many options to show, capped at the pool size
	TimeLimit    time.Duration // advertised per-level limit; expiry enforcement uses the global setting
}

// DefaultDifficulty is used when an unrecognized difficulty is requested.
const DefaultDifficulty = "medium"

// Levels is the fixed difficulty table.
var Levels = map[string]Level{
	"easy":   {ObjectsCount: 5, TimeLimit: 60 * time.Second},
	"medium": {ObjectsCount: 10, TimeLimit: 45 * time.Second},
	"hard":   {ObjectsCount: 15, TimeLimit: 30 * time.Second},
}

// vocabulary maps each concept to its emoji pool. The first entry of each
// pool is the emoji that matches the concept.
var vocabulary = map[string][]string{
	"table": {"🪑", "🍽️", "🏠", "🧊", "🚪"},
	"chair": {"🪑", "🛋️", "🏠", "🧊", "📚"},
	"spoon": {"🥄", "🍲", "🥣", "🍽️", "🍵"},
	"fork":  {"🍴", "🥘", "🍽️", "🥣", "🍲"},
	"knife": {"🔪", "🍽️", "🥩", "🥒", "🥕"},
	"cup":   {"☕", "🍵", "🥤", "🍺", "🥛"},
}

// concepts is the stable ordering of vocabulary keys for uniform selection.
var concepts = func() []string {
	keys := make([]string, 0, len(vocabulary))
	for k := range vocabulary {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}()

// Generator produces challenges for a configured difficulty.
type Generator struct {
	level Level
}

// NewGenerator creates a generator for the given difficulty. An unknown
// difficulty falls back to DefaultDifficulty.
func NewGenerator(difficulty string) *Generator {
	level, ok := Levels[difficulty]
	if !ok {
		level = Levels[DefaultDifficulty]
	}
	return &Generator{level: level}
}

// Generate picks a concept uniformly at random and returns its challenge.
// The option count is capped at the concept's pool size, so a difficulty
// asking for more options than exist cannot fail.
func (g *Generator) Generate() Challenge {
	concept := concepts[rand.IntN(len(concepts))]
	pool := vocabulary[concept]

	options := make([]string, len(pool))
	copy(options, pool)
	correct := options[0]

	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	count := g.level.ObjectsCount
	if count > len(options) {
		count = len(options)
	}
	options = options[:count]

	// Shuffling may have pushed the correct emoji past the cut; put it back
	// at a random position so exactly one shown option matches.
	if !slices.Contains(options, correct) {
		options[rand.IntN(len(options))] = correct
	}

	return Challenge{
		Concept: concept,
		Options: options,
		Correct: correct,
	}
}

// TimeLimit returns the per-level response limit advertised to the user.
func (g *Generator) TimeLimit() time.Duration {
	return g.level.TimeLimit
}
