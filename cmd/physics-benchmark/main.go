package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/voxphys/config"
	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/physics"
	"github.com/lixenwraith/voxphys/status"
	"github.com/lixenwraith/voxphys/vmath"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	debugFlag  = flag.Bool("debug", false, "Write logs to logs/")
	bodies     = flag.Int("bodies", 5000, "Dynamic bodies to spawn")
	duration   = flag.Duration("duration", 10*time.Second, "Benchmark duration")
	workers    = flag.Int("workers", 0, "Solver workers, 0 = GOMAXPROCS")
	seed       = flag.Uint64("seed", 1, "Spawn seed")
	arena      = flag.Int("arena", 128, "Floor edge in voxels")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *debugFlag {
		cfg.Log.Debug = true
	}
	if *workers > 0 {
		cfg.Solver.Workers = *workers
	}
	if *bodies > cfg.World.Capacity {
		cfg.World.Capacity = *bodies
	}
	logger, logFile, err := config.SetupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Floor at y=0 with walls one voxel high around it
	edge := *arena
	terrain := physics.NewVoxelSet()
	terrain.FillBox([3]int{0, 0, 0}, [3]int{edge - 1, 0, edge - 1})
	terrain.FillBox([3]int{0, 1, 0}, [3]int{edge - 1, 1, 0})
	terrain.FillBox([3]int{0, 1, edge - 1}, [3]int{edge - 1, 1, edge - 1})
	terrain.FillBox([3]int{0, 1, 0}, [3]int{0, 1, edge - 1})
	terrain.FillBox([3]int{edge - 1, 1, 0}, [3]int{edge - 1, 1, edge - 1})

	registry := status.NewRegistry()
	wc, err := cfg.WorldConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	wc.Terrain = terrain
	wc.Logger = logger
	wc.Metrics = registry
	world, err := physics.NewWorld(wc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create world: %v\n", err)
		os.Exit(1)
	}
	logger.Printf("config: workers=%d iterations=%d cell=%v bodies=%d arena=%d",
		cfg.Solver.Workers, cfg.Solver.Iterations, cfg.Hash.CellSize, *bodies, edge)

	rng := vmath.NewFastRand(*seed)
	spawn := vmath.AABB{
		Min: mgl32.Vec3{2, 4, 2},
		Max: mgl32.Vec3{float32(edge - 2), 4 + float32(*bodies)/float32(edge), float32(edge - 2)},
	}
	half := mgl32.Vec3{0.5, 0.5, 0.5}
	spawned := 0
	for i := 0; i < *bodies; i++ {
		pos := rng.V3InBox(spawn)
		if _, err := world.AddEntity(pos, mgl32.Vec3{}, rng.Range(0.5, 2), half); err != nil {
			logger.Printf("spawn %d at %v: %v", i, pos, err)
			continue
		}
		spawned++
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	core.Go(func() {
		<-sigCh
		close(stop)
	})

	step := parameter.FixedTimestep
	var (
		steps     int
		slow      int
		worst     time.Duration
		stepTotal time.Duration
	)
	start := time.Now()
	lastLog := start

loop:
	for time.Since(start) < *duration {
		select {
		case <-stop:
			break loop
		default:
		}

		t0 := time.Now()
		n, err := world.Update(step)
		elapsed := time.Since(t0)
		if err != nil {
			slow++
		}
		steps += n
		stepTotal += elapsed
		worst = max(worst, elapsed)

		if time.Since(lastLog) >= parameter.StatsLogInterval {
			logger.Printf("stats: %s", registry)
			lastLog = time.Now()
		}
	}

	total := time.Since(start)
	stats := world.Stats()

	fmt.Printf("Physics Benchmark Results:\n")
	fmt.Printf("  Bodies:        %d (%d spawned)\n", *bodies, spawned)
	fmt.Printf("  Deactivated:   %d\n", world.Deactivated())
	fmt.Printf("  Steps:         %d\n", steps)
	fmt.Printf("  Total Time:    %v\n", total)
	if steps > 0 {
		fmt.Printf("  Avg Step:      %v\n", stepTotal/time.Duration(steps))
		fmt.Printf("  Steps/sec:     %.1f\n", float64(steps)/total.Seconds())
	}
	fmt.Printf("  Worst Step:    %v\n", worst)
	fmt.Printf("  Slow Updates:  %d (budget %v)\n", slow, cfg.Integrator.SlowStepBudget)
	fmt.Printf("  Last Contacts: %d (dropped %d)\n", stats.Contacts, stats.Dropped)
	fmt.Printf("  Sleeping:      %d\n", stats.Sleeping)
	hs := world.HashStats()
	fmt.Printf("  Hash Cells:    %d (%d entities, max %d, avg %.2f per cell)\n",
		hs.Cells, hs.Entities, hs.MaxPerCell, hs.AvgPerCell)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("  Total Alloc:   %d bytes\n", m.TotalAlloc)
	fmt.Printf("  Mallocs:       %d\n", m.Mallocs)
}
