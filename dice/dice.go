// Package dice parses and rolls NdM dice expressions.
package dice

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flagbearer/ctfbot"
)

// Default is rolled when no expression is given.
const Default = "1d100"

// Bounds on both the number of dice and the sides per die.
const (
	MaxDice  = 100
	MaxSides = 100
)

var exprRegex = regexp.MustCompile(`^(\d+)d(\d+)$`)

// Roll is the outcome of one dice expression.
type Roll struct {
	Dice    int
	Sides   int
	Results []int
}

// Total returns the sum of all dice.
func (r *Roll) Total() int {
	var total int
	for _, v := range r.Results {
		total += v
	}
	return total
}

// String formats the roll the way it is posted back to the channel.
func (r *Roll) String() string {
	if len(r.Results) == 1 {
		return fmt.Sprintf("%dd%d: %d", r.Dice, r.Sides, r.Results[0])
	}

	parts := make([]string, len(r.Results))
	for i, v := range r.Results {
		parts[i] = strconv.Itoa(v)
	}
	return fmt.Sprintf("%dd%d: %s\nTotal: %d", r.Dice, r.Sides, strings.Join(parts, ", "), r.Total())
}

// Config for the roller.
type Config struct {
	// Optional seed for testing.
	Seed int64
}

// Roller rolls dice. It is safe for concurrent use.
type Roller struct {
	mu     sync.Mutex
	random *rand.Rand
}

// New creates a new Roller.
func New(cfg *Config) *Roller {
	seed := time.Now().UnixNano()
	if cfg != nil && cfg.Seed != 0 {
		seed = cfg.Seed
	}
	return &Roller{random: rand.New(rand.NewSource(seed))}
}

// Parse validates an NdM expression and returns the dice count and sides.
func Parse(expr string) (n, sides int, err error) {
	m := exprRegex.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return 0, 0, ctfbot.Errorf(ctfbot.EINVALID, "Format must be NdM, for example `3d6`.")
	}

	// Both groups are digit-only; overflow is the only possible error.
	n, errN := strconv.Atoi(m[1])
	sides, errS := strconv.Atoi(m[2])
	if errN != nil || errS != nil || n < 1 || n > MaxDice || sides < 1 || sides > MaxSides {
		return 0, 0, ctfbot.Errorf(ctfbot.EINVALID, "Use 1-%d dice with 1-%d sides.", MaxDice, MaxSides)
	}
	return n, sides, nil
}

// Roll parses expr and rolls it. An empty expression rolls Default.
func (r *Roller) Roll(expr string) (*Roll, error) {
	if strings.TrimSpace(expr) == "" {
		expr = Default
	}

	n, sides, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	roll := &Roll{Dice: n, Sides: sides, Results: make([]int, n)}
	for i := range roll.Results {
		roll.Results[i] = r.random.Intn(sides) + 1
	}
	return roll, nil
}
