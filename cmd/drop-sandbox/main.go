package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/lixenwraith/voxphys/config"
	"github.com/lixenwraith/voxphys/core"
	"github.com/lixenwraith/voxphys/engine"
	"github.com/lixenwraith/voxphys/parameter"
	"github.com/lixenwraith/voxphys/physics"
	"github.com/lixenwraith/voxphys/status"
	"github.com/lixenwraith/voxphys/vmath"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	debugFlag  = flag.Bool("debug", false, "Write logs to logs/")
	seedFlag   = flag.Uint64("seed", 1, "Spawn seed")
)

const (
	burstSize    = 12
	floorDepth   = 8 // voxels along Z
	toneCooldown = 80 * time.Millisecond
	toneLength   = 40 * time.Millisecond
	jumpImpulse  = 60
)

var (
	colorBg     = tcell.NewRGBColor(26, 27, 38)
	colorFloor  = tcell.NewRGBColor(90, 80, 70)
	colorSleep  = tcell.NewRGBColor(90, 90, 110)
	colorStatus = tcell.NewRGBColor(200, 200, 200)
	bodyPalette = []tcell.Color{
		tcell.NewRGBColor(0, 255, 255),
		tcell.NewRGBColor(255, 0, 255),
		tcell.NewRGBColor(255, 160, 50),
		tcell.NewRGBColor(120, 255, 120),
	}
)

// Sandbox drops boxes onto a voxel floor and renders a side view (X right, Y up)
type Sandbox struct {
	screen        tcell.Screen
	width, height int

	world    *physics.World
	terrain  *physics.VoxelSet
	registry *status.Registry
	logger   *log.Logger
	rng      *vmath.FastRand
	clock    *engine.FrameClock

	transforms []physics.Transform
	contacts   []physics.ContactPair
	impulses   []physics.Impulse

	lastContacts int
	lastTone     time.Time
	audioInit    bool
}

func NewSandbox(cfg config.Config, logger *log.Logger) (*Sandbox, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	s := &Sandbox{
		screen:   screen,
		terrain:  physics.NewVoxelSet(),
		registry: status.NewRegistry(),
		logger:   logger,
		rng:      vmath.NewFastRand(*seedFlag),
		clock:    engine.NewFrameClock(nil),
	}
	s.width, s.height = screen.Size()
	s.buildTerrain()

	wc, err := cfg.WorldConfig()
	if err != nil {
		screen.Fini()
		return nil, err
	}
	wc.Terrain = s.terrain
	wc.Logger = logger
	wc.Metrics = s.registry
	if s.world, err = physics.NewWorld(wc); err != nil {
		screen.Fini()
		return nil, err
	}

	if err := s.initAudio(); err != nil {
		logger.Printf("audio initialization failed: %v", err)
	}
	return s, nil
}

// buildTerrain lays a floor across the screen with a wall at each side
// Rebuilt on resize; existing voxels stay, which can leave old walls mid-screen
func (s *Sandbox) buildTerrain() {
	s.terrain.FillBox([3]int{0, 0, 0}, [3]int{s.width - 1, 0, floorDepth - 1})
	s.terrain.FillBox([3]int{0, 1, 0}, [3]int{0, s.height, floorDepth - 1})
	s.terrain.FillBox([3]int{s.width - 1, 1, 0}, [3]int{s.width - 1, s.height, floorDepth - 1})
}

func (s *Sandbox) initAudio() error {
	sampleRate := beep.SampleRate(44100)
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return err
	}
	s.audioInit = true
	return nil
}

// playImpact sounds a short tone, higher for more new contacts
func (s *Sandbox) playImpact(newContacts int) {
	if !s.audioInit || time.Since(s.lastTone) < toneCooldown {
		return
	}
	s.lastTone = time.Now()

	sampleRate := beep.SampleRate(44100)
	freq := 220 + 40*min(newContacts, 20)
	tone, err := generators.SineTone(sampleRate, float64(freq))
	if err != nil {
		return
	}
	speaker.Play(beep.Take(sampleRate.N(toneLength), tone))
}

func (s *Sandbox) spawnBurst() {
	top := float32(s.height - 3)
	for i := 0; i < burstSize; i++ {
		half := mgl32.Vec3{0.5, 0.5, 0.5}
		pos := mgl32.Vec3{
			s.rng.Range(2, float32(s.width-2)),
			s.rng.Range(top-4, top),
			s.rng.Range(1, floorDepth-1),
		}
		vel := mgl32.Vec3{s.rng.Range(-10, 10), 0, 0}
		_, err := s.world.NewBody(pos, half).
			Velocity(vel).
			Mass(s.rng.Range(0.5, 2)).
			Restitution(s.rng.Range(0.1, 0.6)).
			Build()
		if err != nil {
			s.logger.Printf("spawn at %v: %v", pos, err)
		}
	}
}

// jump kicks every awake or sleeping body upward
func (s *Sandbox) jump() {
	s.impulses = s.impulses[:0]
	for _, t := range s.transforms {
		s.impulses = append(s.impulses, physics.Impulse{ID: t.ID, Impulse: mgl32.Vec3{0, jumpImpulse, 0}})
	}
	if err := s.world.ApplyImpulses(s.impulses); err != nil {
		s.logger.Printf("jump: %v", err)
	}
}

func (s *Sandbox) removeRandom() {
	if len(s.transforms) == 0 {
		return
	}
	id := s.transforms[s.rng.Intn(len(s.transforms))].ID
	if err := s.world.RemoveEntity(id); err != nil {
		s.logger.Printf("remove %v: %v", id, err)
	}
}

func (s *Sandbox) clear() {
	for _, t := range s.transforms {
		_ = s.world.RemoveEntity(t.ID)
	}
}

func (s *Sandbox) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case ' ':
				s.spawnBurst()
			case 'j':
				s.jump()
			case 'r':
				s.removeRandom()
			case 'c':
				s.clear()
			case 'p':
				s.clock.Toggle()
			}
		}
	case *tcell.EventResize:
		s.width, s.height = s.screen.Size()
		s.buildTerrain()
		s.screen.Sync()
	}
	return true
}

func (s *Sandbox) update() {
	frameTime := s.clock.Tick()
	if frameTime == 0 {
		return
	}
	if _, err := s.world.Update(frameTime); err != nil {
		s.logger.Printf("update: %v", err)
	}

	s.contacts = s.world.Contacts(s.contacts[:0])
	if n := len(s.contacts); n > s.lastContacts {
		s.playImpact(n - s.lastContacts)
	}
	s.lastContacts = len(s.contacts)
}

// toScreen maps world X/Y to a cell; the floor is drawn on the second-last row
// and a body resting on it lands on the row above
func (s *Sandbox) toScreen(p mgl32.Vec3) (int, int) {
	return int(p[0]), s.height - 3 - int(p[1]-1)
}

func (s *Sandbox) draw() {
	s.screen.Clear()
	bg := tcell.StyleDefault.Background(colorBg)

	for x := 0; x < s.width; x++ {
		s.screen.SetContent(x, s.height-2, '▀', nil, bg.Foreground(colorFloor))
	}
	for y := 0; y < s.height-2; y++ {
		s.screen.SetContent(0, y, '█', nil, bg.Foreground(colorFloor))
		s.screen.SetContent(s.width-1, y, '█', nil, bg.Foreground(colorFloor))
	}

	s.transforms = s.world.Transforms(s.transforms[:0])
	for _, t := range s.transforms {
		x, y := s.toScreen(t.Position)
		if x < 0 || x >= s.width || y < 0 || y >= s.height-2 {
			continue
		}
		style := bg.Foreground(bodyPalette[int(t.ID.Index)%len(bodyPalette)])
		if t.Sleeping {
			style = bg.Foreground(colorSleep)
		}
		s.screen.SetContent(x, y, '■', nil, style)
	}

	stats := s.world.Stats()
	line := fmt.Sprintf("bodies %d | contacts %d | sleeping %d | alpha %.2f | [Space] drop [j] jump [r] remove [c] clear [p] pause [q] quit",
		len(s.transforms), stats.Contacts, stats.Sleeping, s.world.Alpha())
	if s.clock.IsPaused() {
		line = "PAUSED | " + line
	}
	for i, r := range []rune(line) {
		if i >= s.width {
			break
		}
		s.screen.SetContent(i, s.height-1, r, nil, bg.Foreground(colorStatus))
	}

	s.screen.Show()
}

func (s *Sandbox) run() {
	ticker := time.NewTicker(parameter.FrameUpdateInterval)
	defer ticker.Stop()
	statsTicker := time.NewTicker(parameter.StatsLogInterval)
	defer statsTicker.Stop()

	eventChan := make(chan tcell.Event, 100)
	core.Go(func() {
		for {
			eventChan <- s.screen.PollEvent()
		}
	})

	for {
		select {
		case ev := <-eventChan:
			if !s.handleInput(ev) {
				return
			}

		case <-ticker.C:
			s.update()
			s.draw()

		case <-statsTicker.C:
			s.logger.Printf("stats: %s", s.registry)
		}
	}
}

func (s *Sandbox) cleanup() {
	if s.audioInit {
		speaker.Close()
	}
	s.screen.Fini()
}

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
	logger, logFile, err := config.SetupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	sandbox, err := NewSandbox(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	core.SetCrashCleanup(sandbox.screen.Fini)
	defer func() {
		if r := recover(); r != nil {
			core.HandleCrash(r)
		}
	}()
	defer sandbox.cleanup()

	sandbox.run()
}
