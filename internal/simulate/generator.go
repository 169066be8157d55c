package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/dropwatch/internal/domain/clears"
	"github.com/okian/dropwatch/internal/domain/model"
)

// Plan is the generated workload.
type Plan struct {
	Clears     []clears.RecordInput
	Duplicates int
}

// Generate builds one clear per character and boss, plus resubmissions at
// DuplicateRate. Each catalog item drops independently with DropChance.
func Generate(cfg *Config, bosses []model.Boss) Plan {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	var plan Plan
	for i := 0; i < cfg.Characters; i++ {
		character := fmt.Sprintf("sim-%s", uuid.NewString())
		for _, b := range bosses {
			in := generateClear(rng, cfg, character, b)
			plan.Clears = append(plan.Clears, in)
			if rng.Float64() < cfg.DuplicateRate {
				plan.Clears = append(plan.Clears, in)
				plan.Duplicates++
			}
		}
	}
	return plan
}

func generateClear(rng *rand.Rand, cfg *Config, character string, b model.Boss) clears.RecordInput {
	maxParty := max(b.PartySize, 1)
	party := 1 + rng.IntN(maxParty)
	cleared := rng.Float64() >= cfg.FailRate

	in := clears.RecordInput{
		CharacterID: character,
		BossID:      b.ID,
		PartySize:   &party,
		Cleared:     &cleared,
	}
	if !cleared {
		return in
	}
	for _, item := range b.Drops {
		if item.Guaranteed || rng.Float64() < cfg.DropChance {
			in.Drops = append(in.Drops, clears.DropInput{ItemID: item.ItemID})
		}
	}
	return in
}

// Expectation is what accepted clears should add to the projection.
type Expectation struct {
	Runs  map[string]int
	Drops map[model.Pair]int
}

// Expect counts runs per boss and runs-with-item per pair. Failed attempts
// are not runs, and an item repeated within one clear counts once.
func Expect(accepted []clears.RecordInput) Expectation {
	exp := Expectation{Runs: map[string]int{}, Drops: map[model.Pair]int{}}
	for _, in := range accepted {
		if in.Cleared != nil && !*in.Cleared {
			continue
		}
		exp.Runs[in.BossID]++
		seen := map[string]bool{}
		for _, d := range in.Drops {
			if seen[d.ItemID] {
				continue
			}
			seen[d.ItemID] = true
			exp.Drops[model.Pair{BossID: in.BossID, ItemID: d.ItemID}]++
		}
	}
	return exp
}
