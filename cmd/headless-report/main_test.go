package main

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/CesarAugustusGroB/BattleSim.io/internal/config"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/sim"
)

func TestTeamSurvival(t *testing.T) {
	rs := runStats{
		stats:     sim.Stats{RedCount: 1, BlueCount: 4},
		redTotal:  4,
		blueTotal: 4,
	}
	red, blue := teamSurvival(rs)
	if red != 0.25 || blue != 1 {
		t.Fatalf("expected survival red=0.25 blue=1, got red=%v blue=%v", red, blue)
	}

	red, blue = teamSurvival(runStats{})
	if red != 0 || blue != 0 {
		t.Fatalf("expected zero survival for empty run, got red=%v blue=%v", red, blue)
	}
}

func TestDetectStalemate_TrueWhenMutualSurvivalHigh(t *testing.T) {
	rs := runStats{
		hits:      40,
		stats:     sim.Stats{RedCount: 15, BlueCount: 14},
		redTotal:  20,
		blueTotal: 20,
	}

	isStalemate, reason := detectStalemate(rs)
	if !isStalemate {
		t.Fatalf("expected stalemate=true, got false (reason=%s)", reason)
	}
	if !strings.Contains(reason, "high_mutual_survival") {
		t.Fatalf("expected reason to mention high_mutual_survival, got: %s", reason)
	}
}

func TestDetectStalemate_TrueWhenNoContact(t *testing.T) {
	rs := runStats{stats: sim.Stats{RedCount: 1, BlueCount: 1}, redTotal: 1, blueTotal: 1}
	isStalemate, reason := detectStalemate(rs)
	if !isStalemate || reason != "no_contact" {
		t.Fatalf("expected no_contact stalemate, got %v (%s)", isStalemate, reason)
	}
}

func TestDetectStalemate_FalseWhenDecided(t *testing.T) {
	rs := runStats{
		decided:   true,
		hits:      40,
		stats:     sim.Stats{RedCount: 15},
		redTotal:  20,
		blueTotal: 20,
	}
	if isStalemate, reason := detectStalemate(rs); isStalemate {
		t.Fatalf("expected stalemate=false for a decided run (reason=%s)", reason)
	}
}

func TestDetectStalemate_FalseWhenAttritionDecisive(t *testing.T) {
	rs := runStats{
		hits:      120,
		stats:     sim.Stats{RedCount: 4, BlueCount: 15},
		redTotal:  20,
		blueTotal: 20,
	}

	isStalemate, reason := detectStalemate(rs)
	if isStalemate {
		t.Fatalf("expected stalemate=false under decisive attrition (reason=%s)", reason)
	}
	if !strings.HasPrefix(reason, "attrition") {
		t.Fatalf("expected attrition reason, got: %s", reason)
	}
}

func TestTopKillers(t *testing.T) {
	got := topKillers(map[string]int{"R1": 2, "B3": 5, "B1": 2, "R9": 1}, 3)
	if got != "B3(5),B1(2),R1(2)" {
		t.Fatalf("unexpected ranking: %s", got)
	}
	if topKillers(nil, 3) != "none" {
		t.Fatalf("expected none for empty map")
	}
}

func TestRunScenarioDuelIsDeterministic(t *testing.T) {
	cfg := config.Default()
	p := runParams{scenario: "duel", unitType: sim.UnitSoldier, ticks: 3600}
	a, err := runScenario(cfg, p, 1, 7, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := runScenario(cfg, p, 1, 7, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !a.decided {
		t.Fatalf("expected the duel to finish within 3600 ticks, stats=%+v", a.stats)
	}
	if a.winner == "draw" {
		t.Fatalf("expected a winner, got draw")
	}
	if a.firstContactTick < 0 || a.firstHitTick < a.firstContactTick || a.firstDeathTick < a.firstHitTick {
		t.Fatalf("phase markers out of order: contact=%d hit=%d death=%d",
			a.firstContactTick, a.firstHitTick, a.firstDeathTick)
	}
	if a.deaths != 1 || len(a.killsByLabel) != 1 {
		t.Fatalf("expected exactly one kill, got deaths=%d kills=%v", a.deaths, a.killsByLabel)
	}
	if a.ticks != b.ticks || a.winner != b.winner || a.damage != b.damage {
		t.Fatalf("same seed diverged: %d/%s/%.0f vs %d/%s/%.0f",
			a.ticks, a.winner, a.damage, b.ticks, b.winner, b.damage)
	}
}

func TestRunScenarioRejectsUnknownName(t *testing.T) {
	p := runParams{scenario: "siege", unitType: sim.UnitSoldier, ticks: 10}
	if _, err := runScenario(config.Default(), p, 1, 1, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for an unknown scenario")
	}
}

func TestRunScenarioFieldsRequestedType(t *testing.T) {
	typ, err := sim.ParseUnitType(" Tank ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := runParams{scenario: "duel", unitType: typ, ticks: 1}
	rs, err := runScenario(config.Default(), p, 1, 3, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rs.redTotal != 1 || rs.blueTotal != 1 {
		t.Fatalf("expected a one-on-one duel, got red=%d blue=%d", rs.redTotal, rs.blueTotal)
	}
	if _, err := sim.ParseUnitType("cavalry"); err == nil {
		t.Fatal("expected an error for an unknown unit type")
	}
}

func TestRunScenarioTraceEndsAtFirstDeath(t *testing.T) {
	p := runParams{scenario: "duel", unitType: sim.UnitSoldier, ticks: 3600, trace: 120}
	rs, err := runScenario(config.Default(), p, 1, 7, zerolog.Nop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rs.firstDeathTick < 0 {
		t.Fatal("expected a death within 3600 ticks")
	}
	if !strings.Contains(rs.trace, "death") || !strings.Contains(rs.trace, "hit") {
		t.Fatalf("trace should cover the killing blow and the death:\n%s", rs.trace)
	}
	if rs.hits == 0 || rs.damage != float64(rs.hits)*12 {
		t.Fatalf("soldier hits should deal 12 each: hits=%d damage=%.0f", rs.hits, rs.damage)
	}
}
