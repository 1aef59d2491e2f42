package app

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rajveermalviya/go-webgpu/wgpu"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mapviewer/internal/camera"
	"mapviewer/internal/config"
	"mapviewer/internal/explore"
	"mapviewer/internal/geo"
	"mapviewer/internal/memory"
	"mapviewer/internal/metrics"
	"mapviewer/internal/overlay"
	"mapviewer/internal/renderer"
	"mapviewer/internal/session"
	"mapviewer/internal/status"
	"mapviewer/internal/tileserver"
	"mapviewer/internal/transit"
	"mapviewer/internal/vectortile"
	"mapviewer/pkg/tiles"
)

const (
	KeyPanSpeed = 10.0

	tileLoaders = 4
	// markerMargin keeps markers drawn while their dot is partly on screen.
	markerMargin = 16.0
)

type App struct {
	cfg *config.Config
	log *zap.Logger
	clk clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	loop   *eventLoop

	session  *session.Session
	window   *glfw.Window
	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	renderer    *renderer.Renderer
	camera      *camera.Camera
	host        *mapHost
	tileCache   *tileserver.TileCache
	vectorTiles *vectortile.VectorTileCache

	sequencer *transit.Sequencer
	navigator *explore.Navigator
	presenter *overlay.Presenter
	fader     *overlay.Fader
	panel     *status.Panel
	sampler   *memory.Sampler

	keys   map[glfw.Key]bool
	keysMu sync.RWMutex

	tileRequests chan tiles.TileCoord

	width, height int
}

// New opens the window and wires every component. It must be called from the
// main goroutine, which then has to call Run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, eris.Wrap(err, "app: init glfw")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.CocoaRetinaFramebuffer, glfw.True)

	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, eris.Wrap(err, "app: create window")
	}

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	app := &App{
		cfg:          cfg,
		log:          zap.L().With(zap.String("component", "app")),
		clk:          clock.New(),
		ctx:          gctx,
		cancel:       cancel,
		group:        group,
		loop:         newEventLoop(gctx, 256),
		session:      session.New(),
		window:       window,
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
		keys:         make(map[glfw.Key]bool),
		tileRequests: make(chan tiles.TileCoord, 500),
	}

	if err := app.session.Attach(window); err != nil {
		app.abort()
		return nil, err
	}

	if err := app.initWebGPU(); err != nil {
		app.abort()
		return nil, err
	}

	if err := app.initMap(); err != nil {
		app.abort()
		return nil, err
	}

	app.initTransitions()
	app.initSidebar()
	app.setupCallbacks()
	app.startBackground()

	// Seed the sequencer's baseline with the start position.
	app.sequencer.Begin(cfg.Start())
	app.panel.SetPosition(cfg.Start())
	app.prefetchTiles()

	return app, nil
}

func (app *App) initWebGPU() error {
	app.instance = wgpu.CreateInstance(&wgpu.InstanceDescriptor{
		Backends: instanceBackends,
	})
	if app.instance == nil {
		return eris.New("app: create WebGPU instance")
	}

	app.surface = CreateSurface(app.instance, app.window)
	if app.surface == nil {
		return eris.New("app: create surface")
	}

	// Request adapter - try with surface first, then without
	var err error
	app.adapter, err = app.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface:    app.surface,
		PowerPreference:      wgpu.PowerPreference_HighPerformance,
		ForceFallbackAdapter: false,
	})
	if err != nil {
		app.log.Warn("retrying adapter without surface constraint", zap.Error(err))
		app.adapter, err = app.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
			PowerPreference: wgpu.PowerPreference_HighPerformance,
		})
		if err != nil {
			return eris.Wrap(err, "app: request adapter")
		}
	}

	props := app.adapter.GetProperties()
	app.log.Info("gpu selected", zap.String("name", props.Name), zap.String("driver", props.DriverDescription))

	app.device, err = app.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "MapViewerDevice",
	})
	if err != nil {
		return eris.Wrap(err, "app: request device")
	}

	app.queue = app.device.GetQueue()
	return nil
}

func (app *App) initMap() error {
	cfg := app.cfg

	app.vectorTiles = vectortile.NewVectorTileCache(vectortile.Options{
		URLTemplate: cfg.Map.VectorTileURL,
		UserAgent:   cfg.Map.UserAgent,
	})

	cache, err := tileserver.NewTileCache(tileserver.Options{
		Dir:               cfg.Map.CacheDir,
		URLTemplate:       cfg.Map.TileURL,
		UserAgent:         cfg.Map.UserAgent,
		Workers:           cfg.Map.Workers,
		RequestsPerSecond: cfg.Map.RequestsPerSecond,
		OnClear: func() {
			app.vectorTiles.Clear()
			app.loop.TryPost(func() {
				if app.renderer != nil {
					app.renderer.ReleaseTiles()
				}
			})
		},
	})
	if err != nil {
		return err
	}
	app.tileCache = cache

	if cfg.Cache.ClearOnStart {
		if _, err := cache.Clear(); err != nil {
			app.log.Warn("initial cache clear failed", zap.Error(err))
		}
	}

	start := cfg.Start()
	app.camera = camera.NewCamera(start.Lat, start.Lon, cfg.Map.Zoom, app.width, app.height)
	app.host = &mapHost{
		cam:   app.camera,
		live:  app.session.Live,
		moved: app.prefetchTiles,
	}

	app.renderer, err = renderer.NewRenderer(app.adapter, app.device, app.queue, app.surface, uint32(app.width), uint32(app.height))
	if err != nil {
		return err
	}
	return nil
}

func (app *App) initTransitions() {
	cfg := app.cfg
	sched := &transit.ClockScheduler{Clock: app.clk, Post: app.loop.Post}
	timeline := cfg.Transition.Timeline()

	app.sequencer = transit.NewSequencer(app.host, sched,
		transit.WithTimeline(timeline),
		transit.OnOutcome(func(o transit.Outcome) {
			metrics.Transitions.WithLabelValues(o.String()).Inc()
		}),
		transit.OnSettled(app.settled),
	)

	app.navigator = explore.NewNavigator(app.sequencer, sched, explore.Config{
		LeadIn: cfg.Transition.LeadIn,
		Hold:   timeline.Total(),
		Home:   cfg.Start(),
	}, nil)

	app.presenter = overlay.NewPresenter(app.clk, cfg.Overlay.Delay, cfg.Overlay.Alpha)
	app.fader = overlay.NewFader(cfg.Overlay.Fade)
}

// settled runs on the render thread once a flight reaches idle.
func (app *App) settled(f transit.Flight) {
	metrics.TransitionDistance.Observe(f.Distance)
	if !app.cfg.Features.EnablePlaceLookup {
		app.panel.Report(app.log, "transition settled")
		return
	}
	app.group.Go(func() error {
		place, ok, err := app.vectorTiles.NearestPlace(app.ctx, f.To.Orb())
		switch {
		case err != nil:
			app.log.Debug("place lookup failed", zap.Stringer("at", f.To), zap.Error(err))
		case ok:
			app.panel.SetNearestPlace(f.To, place.Name)
		}
		app.panel.Report(app.log, "transition settled")
		return nil
	})
}

func (app *App) initSidebar() {
	app.panel = status.NewPanel(status.Versions{
		Go:     runtime.Version(),
		GLFW:   glfw.GetVersionString(),
		WebGPU: moduleVersion("github.com/rajveermalviya/go-webgpu"),
	})
	app.panel.SetWindow(app.session.State())

	app.navigator.OnMove(app.panel.SetPosition)

	unsubscribe := watchWindow(app.session, app.panel, app.log)

	app.sampler = memory.NewSampler(memory.Config{
		Interval:  app.cfg.Memory.Interval,
		Threshold: app.cfg.Memory.GCThresholdMB << 20,
		Clock:     app.clk,
		Live:      app.session.Live,
	})

	app.session.OnTeardown(func(s *session.Session) {
		unsubscribe()
		app.sequencer.Cancel()
		if _, err := app.tileCache.Clear(); err != nil {
			app.log.Warn("teardown cache clear failed", zap.Error(err))
		}
	})
}

// moduleVersion reports the version of a dependency linked into the binary.
func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return depVersion(info.Deps, path)
}

func (app *App) startBackground() {
	ctx := app.ctx

	app.group.Go(func() error {
		sub := app.sampler.Subscribe(ctx, app.panel.SetMemory)
		<-sub.Done()
		return nil
	})

	app.group.Go(func() error {
		return app.tileCache.ClearEvery(ctx, app.clk, app.cfg.Cache.ClearInterval, app.session.Live)
	})

	for i := 0; i < tileLoaders; i++ {
		app.group.Go(app.tileLoader)
	}

	if addr := app.cfg.Debug.Addr; addr != "" {
		srv := tileserver.NewServer(addr, app.tileCache, app.panel, app.navigator)
		app.group.Go(func() error {
			// A debug server that cannot listen must not take the viewer down.
			if err := srv.Run(ctx); err != nil {
				app.log.Error("debug server stopped", zap.Error(err))
			}
			return nil
		})
	}
}

func (app *App) setupCallbacks() {
	app.window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if width == 0 || height == 0 {
			return
		}
		app.width = width
		app.height = height
		app.camera.SetViewport(width, height)
		app.renderer.Resize(uint32(width), uint32(height))
		app.prefetchTiles()
	})

	app.window.SetIconifyCallback(func(w *glfw.Window, iconified bool) {
		if iconified {
			app.session.Notify(session.EventMinimized)
		} else {
			app.session.Notify(session.EventRestored)
		}
	})

	app.window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button == glfw.MouseButtonLeft {
			x, y := w.GetCursorPos()
			if action == glfw.Press {
				app.camera.StartDrag(x, y)
			} else {
				app.camera.EndDrag()
				app.prefetchTiles()
			}
		}
	})

	app.window.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		if app.camera.IsDragging() {
			app.camera.Drag(x, y)
		}
	})

	app.window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		x, y := w.GetCursorPos()
		if yoff > 0 {
			app.camera.ZoomAtPoint(1, x, y)
		} else if yoff < 0 {
			app.camera.ZoomAtPoint(-1, x, y)
		}
		app.prefetchTiles()
	})

	app.window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		app.keysMu.Lock()
		if action == glfw.Press {
			app.keys[key] = true
		} else if action == glfw.Release {
			app.keys[key] = false
		}
		app.keysMu.Unlock()

		// Handle single-press actions (not held)
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeySpace:
			app.camera.ZoomOut()
			app.prefetchTiles()
		case glfw.KeyLeftShift, glfw.KeyRightShift:
			app.camera.ZoomIn()
			app.prefetchTiles()
		default:
			if act, ok := actions[key]; ok {
				if err := act(app.navigator); err != nil {
					app.log.Debug("action refused", zap.String("key", glfw.GetKeyName(key, scancode)), zap.Error(err))
				}
			}
		}
	})
}

func (app *App) processInput() {
	app.keysMu.RLock()
	defer app.keysMu.RUnlock()

	panX, panY := 0.0, 0.0

	// W/Up = move map down = camera moves up = positive pan
	if app.keys[glfw.KeyW] || app.keys[glfw.KeyUp] {
		panY += KeyPanSpeed
	}
	if app.keys[glfw.KeyS] || app.keys[glfw.KeyDown] {
		panY -= KeyPanSpeed
	}
	if app.keys[glfw.KeyA] || app.keys[glfw.KeyLeft] {
		panX += KeyPanSpeed
	}
	if app.keys[glfw.KeyD] || app.keys[glfw.KeyRight] {
		panX -= KeyPanSpeed
	}

	if panX != 0 || panY != 0 {
		app.camera.Pan(panX, panY)
	}
}

func (app *App) tileLoader() error {
	for {
		select {
		case <-app.ctx.Done():
			return nil
		case coord := <-app.tileRequests:
			if app.renderer.HasTile(coord) {
				continue
			}
			data, err := app.tileCache.GetTile(app.ctx, coord)
			if err != nil {
				if app.ctx.Err() == nil {
					app.log.Warn("tile load failed", zap.Stringer("tile", coord), zap.Error(err))
				}
				continue
			}
			if err := app.renderer.UploadTile(coord, data); err != nil {
				app.log.Warn("tile upload failed", zap.Stringer("tile", coord), zap.Error(err))
			}
		}
	}
}

func (app *App) prefetchTiles() {
	tilesToLoad := tiles.GetPrefetchTiles(app.camera.Lat, app.camera.Lon, app.camera.Zoom, app.width, app.height)
	for _, coord := range tilesToLoad {
		select {
		case app.tileRequests <- coord:
		default:
		}
	}
}

func (app *App) loadVisibleTiles() {
	visible := tiles.GetVisibleTiles(app.camera.Lat, app.camera.Lon, app.camera.Zoom, app.width, app.height)
	for _, coord := range visible {
		if !app.renderer.HasTile(coord) {
			select {
			case app.tileRequests <- coord:
			default:
			}
		}
	}
}

func (app *App) frame(overlayAlpha float32) renderer.Frame {
	f := renderer.Frame{
		OverlayAlpha: overlayAlpha,
		MarkerRadius: float32(app.cfg.Rendering.MarkerRadius),
	}
	if app.cfg.Features.EnableDecoration && app.host.decorated {
		f.Decoration = float32(app.cfg.Rendering.DecorationStrength)
	}
	if app.cfg.Features.EnableMarkers {
		pois := make([]geo.Point, len(explore.PointsOfInterest))
		for i, poi := range explore.PointsOfInterest {
			pois[i] = poi.Position
		}
		f.Markers = renderer.ProjectMarkers(app.camera, pois, app.navigator.Current(), markerMargin)
	}
	return f
}

// Run drives the event loop until the window is closed or ctx is cancelled.
func (app *App) Run() error {
	lastTitle := app.clk.Now()
	lastFrame := lastTitle
	frames := 0

	for !app.window.ShouldClose() && app.ctx.Err() == nil {
		glfw.PollEvents()
		app.loop.Drain()
		app.processInput()

		now := app.clk.Now()
		dt := float32(now.Sub(lastFrame).Seconds())
		lastFrame = now

		wasAnimating := app.camera.Animating()
		app.camera.Update(dt)
		if wasAnimating && !app.camera.Animating() {
			app.prefetchTiles()
		}

		busy := app.navigator.Busy().Active()
		alpha := app.fader.Update(app.presenter.Render(busy).Opacity, dt)

		if app.session.State() == session.StateMinimized {
			glfw.WaitEventsTimeout(0.1)
			continue
		}

		app.loadVisibleTiles()
		if err := app.renderer.Render(app.camera, app.frame(alpha)); err != nil {
			app.log.Warn("render failed", zap.Error(err))
		}

		frames++
		if now.Sub(lastTitle) >= time.Second {
			app.panel.SetFrame(app.camera.Zoom, frames, busy)
			app.window.SetTitle(app.panel.Title(app.cfg.Window.Title))
			frames = 0
			lastTitle = now
		}
	}

	return app.shutdown()
}

// shutdown stops background work, releases GPU resources while the window
// still exists and ends the session, which destroys the window.
func (app *App) shutdown() error {
	app.cancel()
	err := app.group.Wait()

	app.releaseGPU()
	endSession(app.session, app.log)

	app.tileCache.Close()
	glfw.Terminate()
	return err
}

// abort unwinds a partially built App.
func (app *App) abort() {
	app.releaseGPU()
	_ = app.session.Close()
	app.cancel()
	if app.tileCache != nil {
		app.tileCache.Close()
	}
	glfw.Terminate()
}

func (app *App) releaseGPU() {
	if app.renderer != nil {
		app.renderer.Release()
		app.renderer = nil
	}
	if app.queue != nil {
		app.queue.Release()
		app.queue = nil
	}
	if app.device != nil {
		app.device.Release()
		app.device = nil
	}
	if app.adapter != nil {
		app.adapter.Release()
		app.adapter = nil
	}
	if app.surface != nil {
		app.surface.Release()
		app.surface = nil
	}
	if app.instance != nil {
		app.instance.Release()
		app.instance = nil
	}
}
