package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/CesarAugustusGroB/BattleSim.io/internal/config"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/influx"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/logging"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/sim"
)

// stalemateSurvival is the survival share both sides must keep for an
// undecided run to count as a stalemate.
const stalemateSurvival = 0.5

type runStats struct {
	runIndex int
	seed     int64
	ticks    int // ticks actually simulated
	decided  bool
	winner   string

	firstContactTick int
	firstHitTick     int
	firstDeathTick   int

	hits         int
	damage       float64
	deaths       int
	targetsNew   int
	targetsLost  int
	killsByLabel map[string]int

	stats     sim.Stats
	redTotal  int
	blueTotal int

	windowSummary *sim.WindowReport
	history       []sim.SimReport
	trace         string // log lines leading up to the first death
}

// runParams holds the per-run knobs shared by every run of a report.
type runParams struct {
	scenario string
	unitType sim.UnitType
	ticks    int
	trace    int // ticks of log to keep before the first death; 0 disables
}

func main() {
	var runs int
	var ticks int
	var seedBase int64
	var seedStep int64
	var scenario string
	var typeName string
	var trace int
	var cfgPath string
	var push bool

	flag.IntVar(&runs, "runs", 5, "number of headless simulation runs")
	flag.IntVar(&ticks, "ticks", 3600, "maximum ticks per run")
	flag.Int64Var(&seedBase, "seed-base", 42, "base RNG seed for run 1")
	flag.Int64Var(&seedStep, "seed-step", 1, "seed increment between runs")
	flag.StringVar(&scenario, "scenario", "skirmish", "scenario name (duel, skirmish, mixed)")
	flag.StringVar(&typeName, "type", "soldier", "unit type fielded by duel and skirmish (soldier, tank, archer)")
	flag.IntVar(&trace, "trace", 0, "print the event log for this many ticks before each run's first death")
	flag.StringVar(&cfgPath, "config", "", "path to a JSON, YAML or TOML config file")
	flag.BoolVar(&push, "influx", false, "write run results to InfluxDB (see influx.* config)")
	flag.Parse()

	if runs <= 0 {
		fmt.Println("error: -runs must be > 0")
		os.Exit(2)
	}
	if ticks <= 0 {
		fmt.Println("error: -ticks must be > 0")
		os.Exit(2)
	}

	unitType, err := sim.ParseUnitType(typeName)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	lcfg := logging.Config{Level: cfg.LogLevel, Output: os.Stderr, Component: "headless"}
	if cfg.Graylog.Enabled {
		lcfg.GraylogAddress = cfg.Graylog.Address
	}
	logger, closer, err := logging.Setup(lcfg)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer closer.Close()

	if _, err := sim.ScenarioOf(scenario, unitType, cfg.Arena.Width, cfg.Arena.Height); err != nil {
		fmt.Printf("error: %v (supported: duel, skirmish, mixed)\n", err)
		os.Exit(2)
	}

	var rec *influx.Recorder
	if push {
		ic := cfg.Influx
		ic.Enabled = true
		rec, err = influx.Connect(context.Background(), ic, logger)
		if err != nil {
			logger.Error().Err(err).Msg("influx unavailable, results stay local")
		} else {
			defer func() {
				if err := rec.Close(); err != nil {
					logger.Warn().Err(err).Msg("influx close")
				}
			}()
		}
	}

	fmt.Printf("=== Headless Battle Report ===\n")
	fmt.Printf("scenario=%s type=%s runs=%d ticks=%d seed_base=%d seed_step=%d\n\n",
		scenario, unitType, runs, ticks, seedBase, seedStep)
	params := runParams{scenario: scenario, unitType: unitType, ticks: ticks, trace: trace}

	base := time.Now()
	all := make([]runStats, 0, runs)
	for i := 0; i < runs; i++ {
		seed := seedBase + int64(i)*seedStep
		rs, err := runScenario(cfg, params, i+1, seed, logger)
		if err != nil {
			fmt.Printf("error: run %d: %v\n", i+1, err)
			os.Exit(1)
		}
		all = append(all, rs)
		printRun(rs)
		if rec != nil {
			publish(rec, scenario, rs, base, logger)
		}
	}

	printAggregate(all)
}

func runScenario(cfg *config.Config, p runParams, runIndex int, seed int64, logger zerolog.Logger) (runStats, error) {
	opts, err := sim.ScenarioOf(p.scenario, p.unitType, cfg.Arena.Width, cfg.Arena.Height)
	if err != nil {
		return runStats{}, err
	}
	opts = append([]sim.SimOption{
		sim.WithEngineConfig(cfg.SimConfig()),
		sim.WithSimSeed(seed),
		sim.WithHarnessLogger(logger),
	}, opts...)
	ts, err := sim.NewTestSim(opts...)
	if err != nil {
		return runStats{}, err
	}
	defer ts.Engine.Dispose()

	decidedAt := ts.RunUntil(func(ts *sim.TestSim) bool { return ts.Decided() }, p.ticks)
	rs := collect(ts, runIndex, seed, decidedAt)
	if p.trace > 0 && rs.firstDeathTick >= 0 {
		rs.trace = ts.SimLog.FormatRange(rs.firstDeathTick-p.trace, rs.firstDeathTick)
	}
	return rs, nil
}

// collect gathers the run's markers and tallies from the harness.
func collect(ts *sim.TestSim, runIndex int, seed int64, decidedAt int) runStats {
	s := ts.Engine.Stats()
	rs := runStats{
		runIndex:         runIndex,
		seed:             seed,
		ticks:            ts.Tick,
		decided:          decidedAt >= 0,
		winner:           "draw",
		firstContactTick: firstTick(ts.SimLog, "target", "acquired"),
		firstHitTick:     firstTick(ts.SimLog, "combat", "hit"),
		firstDeathTick:   firstTick(ts.SimLog, "lifecycle", "death"),
		targetsNew:       ts.SimLog.CountCategory("target", "acquired"),
		targetsLost:      ts.SimLog.CountCategory("target", "lost"),
		deaths:           ts.SimLog.CountCategory("lifecycle", "death"),
		killsByLabel:     map[string]int{},
		stats:            s,
		redTotal:         s.RedCount + s.RedCasualties,
		blueTotal:        s.BlueCount + s.BlueCasualties,
		windowSummary:    ts.Reporter.WindowSummary(),
		history:          ts.Reporter.History(),
	}
	if w, ok := ts.Winner(); ok {
		rs.winner = w.String()
	}

	hits := ts.SimLog.Filter("combat", "hit")
	rs.hits = len(hits)
	for _, e := range hits {
		rs.damage += e.NumVal
	}

	// A death is credited to the last unit that hit the victim.
	lastHitter := map[string]string{}
	for _, e := range ts.SimLog.Entries() {
		switch {
		case e.Category == "combat" && e.Key == "hit":
			lastHitter[e.Value] = e.Unit
		case e.Category == "lifecycle" && e.Key == "death":
			if killer, ok := lastHitter[e.Unit]; ok {
				rs.killsByLabel[killer]++
			}
		}
	}
	return rs
}

func firstTick(sl *sim.SimLog, category, key string) int {
	if e, ok := sl.FirstOf(category, key); ok {
		return e.Tick
	}
	return -1
}

// teamSurvival returns each side's surviving share of the units it fielded.
func teamSurvival(rs runStats) (red, blue float64) {
	if rs.redTotal > 0 {
		red = float64(rs.stats.RedCount) / float64(rs.redTotal)
	}
	if rs.blueTotal > 0 {
		blue = float64(rs.stats.BlueCount) / float64(rs.blueTotal)
	}
	return red, blue
}

// detectStalemate flags runs that hit the tick limit with both sides largely
// intact.
func detectStalemate(rs runStats) (bool, string) {
	if rs.decided {
		return false, "decided"
	}
	if rs.hits == 0 {
		return true, "no_contact"
	}
	red, blue := teamSurvival(rs)
	if red >= stalemateSurvival && blue >= stalemateSurvival {
		return true, fmt.Sprintf("high_mutual_survival red=%.0f%% blue=%.0f%%", red*100, blue*100)
	}
	return false, fmt.Sprintf("attrition red=%.0f%% blue=%.0f%%", red*100, blue*100)
}

func printRun(rs runStats) {
	fmt.Printf("--- Run %d (seed=%d) ---\n", rs.runIndex, rs.seed)
	fmt.Printf("outcome: winner=%s ticks=%d elapsed=%.1fs\n", rs.winner, rs.ticks, rs.stats.ElapsedTime)
	fmt.Printf("phase_markers: first_contact=%d first_hit=%d first_death=%d\n",
		rs.firstContactTick, rs.firstHitTick, rs.firstDeathTick)
	fmt.Printf("event_totals: hits=%d damage=%.0f deaths=%d target_acquired=%d target_lost=%d\n",
		rs.hits, rs.damage, rs.deaths, rs.targetsNew, rs.targetsLost)
	red, blue := teamSurvival(rs)
	fmt.Printf("survival: red=%d/%d (%.0f%%) blue=%d/%d (%.0f%%)\n",
		rs.stats.RedCount, rs.redTotal, red*100, rs.stats.BlueCount, rs.blueTotal, blue*100)
	if stale, reason := detectStalemate(rs); stale {
		fmt.Printf("stalemate: %s\n", reason)
	}
	fmt.Printf("top_killers: %s\n", topKillers(rs.killsByLabel, 5))
	if rs.windowSummary != nil {
		fmt.Print(rs.windowSummary.Format())
	}
	if rs.trace != "" {
		fmt.Printf("trace_to_first_death:\n%s", rs.trace)
	}
	fmt.Println()
}

func printAggregate(all []runStats) {
	wins := map[string]int{}
	stalemates := 0
	totalHits, totalDeaths := 0, 0
	totalDamage := 0.0
	contactTicks := make([]int, 0, len(all))
	hitTicks := make([]int, 0, len(all))
	deathTicks := make([]int, 0, len(all))
	decideTicks := make([]int, 0, len(all))
	kills := map[string]int{}

	for _, rs := range all {
		wins[rs.winner]++
		if stale, _ := detectStalemate(rs); stale {
			stalemates++
		}
		totalHits += rs.hits
		totalDeaths += rs.deaths
		totalDamage += rs.damage
		if rs.firstContactTick >= 0 {
			contactTicks = append(contactTicks, rs.firstContactTick)
		}
		if rs.firstHitTick >= 0 {
			hitTicks = append(hitTicks, rs.firstHitTick)
		}
		if rs.firstDeathTick >= 0 {
			deathTicks = append(deathTicks, rs.firstDeathTick)
		}
		if rs.decided {
			decideTicks = append(decideTicks, rs.ticks)
		}
		for label, n := range rs.killsByLabel {
			kills[label] += n
		}
	}

	fmt.Println("=== Aggregate ===")
	fmt.Printf("runs=%d red_wins=%d blue_wins=%d draws=%d stalemates=%d\n",
		len(all), wins["red"], wins["blue"], wins["draw"], stalemates)
	fmt.Printf("avg_events_per_run: hits=%.1f damage=%.1f deaths=%.1f\n",
		avg(totalHits, len(all)), totalDamage/float64(max(len(all), 1)), avg(totalDeaths, len(all)))
	fmt.Printf("phase_marker_avg_ticks: first_contact=%s first_hit=%s first_death=%s decided=%s\n",
		avgTickString(contactTicks), avgTickString(hitTicks), avgTickString(deathTicks), avgTickString(decideTicks))
	fmt.Printf("top_killers_overall: %s\n", topKillers(kills, 10))
}

// publish writes the run summary and its periodic samples to InfluxDB.
func publish(rec *influx.Recorder, scenario string, rs runStats, base time.Time, logger zerolog.Logger) {
	ctx := context.Background()
	run := influx.Run{Scenario: scenario, Index: rs.runIndex, Seed: rs.seed, Winner: rs.winner, Stats: rs.stats}
	if err := rec.WritePoint(ctx, influx.RunPoint(run, base.Add(time.Duration(rs.runIndex)*time.Millisecond))); err != nil {
		logger.Warn().Err(err).Int("run", rs.runIndex).Msg("influx run write failed")
		return
	}
	for _, rep := range rs.history {
		for _, p := range influx.SamplePoints(scenario, rs.seed, rep, base) {
			if err := rec.WritePoint(ctx, p); err != nil {
				logger.Warn().Err(err).Int("run", rs.runIndex).Msg("influx sample write failed")
				return
			}
		}
	}
}

func avg(sum int, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func avgTickString(vals []int) string {
	if len(vals) == 0 {
		return "n/a"
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return fmt.Sprintf("%.1f", float64(sum)/float64(len(vals)))
}

// topKillers lists the n labels with the most kills, highest first.
func topKillers(kills map[string]int, n int) string {
	if len(kills) == 0 {
		return "none"
	}
	labels := make([]string, 0, len(kills))
	for k := range kills {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		if kills[labels[i]] != kills[labels[j]] {
			return kills[labels[i]] > kills[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) > n {
		labels = labels[:n]
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s(%d)", l, kills[l])
	}
	return strings.Join(parts, ",")
}
