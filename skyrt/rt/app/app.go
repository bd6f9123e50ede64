package app

import (
	"fmt"
	"image"
	"time"

	"github.com/gekko3d/clouds"
	"github.com/gekko3d/clouds/skyrt/rt/core"
	"github.com/gekko3d/clouds/skyrt/rt/gpu"
	"github.com/gekko3d/clouds/skyrt/rt/shader"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

const skyPlaneResolution = 32

var skyColor = wgpu.Color{R: 0.38, G: 0.58, B: 0.86, A: 1}

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	Settings clouds.Config
	Logger   clouds.Logger
	Provider *gpu.WgpuProvider
	Shader   *shader.CloudsShader

	Plane        *core.SkyPlane
	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
	Texture      gpu.Texture

	Camera    *core.CameraState
	SkyLayer  *core.Transform
	Profiler  *Profiler
	StartTime float64
	LastTime  float64

	MouseCaptured bool
	MouseX        float64
	MouseY        float64
}

func NewApp(window *glfw.Window, settings clouds.Config, logger clouds.Logger) *App {
	logger = clouds.OrNop(logger)
	return &App{
		Window:   window,
		Settings: settings,
		Logger:   logger,
		Camera:   core.NewCameraState(),
		SkyLayer: core.NewTransform(),
		Profiler: NewProfiler(time.Second),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	format := caps.Formats[0]

	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)

	a.Provider = gpu.NewWgpuProvider(a.Device, format)

	a.Shader, err = shader.NewCloudsShader(a.Provider, a.scoped("shader"), a.Settings.VertexShaderPath, a.Settings.PixelShaderPath)
	if err != nil {
		return err
	}
	if err := a.setupPlane(); err != nil {
		return err
	}
	if err := a.setupTexture(); err != nil {
		return err
	}

	a.StartTime = glfw.GetTime()
	a.LastTime = a.StartTime
	a.Logger.Infof("clouds ready: %dx%d, %d indices, format %v", width, height, a.Plane.IndexCount(), format)
	return nil
}

func (a *App) scoped(name string) clouds.Logger {
	if l, ok := a.Logger.(*clouds.DefaultLogger); ok {
		return l.Scope(name)
	}
	return a.Logger
}

func (a *App) setupPlane() error {
	s := a.Settings
	plane, err := core.NewSkyPlane(skyPlaneResolution, float32(s.PlaneSize), float32(s.PlaneHeight), float32(s.PlaneHeight)/2, float32(s.UVRepeat))
	if err != nil {
		return err
	}
	a.Plane = plane

	a.VertexBuffer, err = a.Provider.CreateBuffer(gpu.BufferDesc{
		Label:    "SkyPlane VB",
		Bind:     gpu.BindVertex,
		Contents: plane.VertexBytes(),
	})
	if err != nil {
		return err
	}
	a.IndexBuffer, err = a.Provider.CreateBuffer(gpu.BufferDesc{
		Label:    "SkyPlane IB",
		Bind:     gpu.BindIndex,
		Contents: plane.IndexBytes(),
	})
	return err
}

func (a *App) loadImage() (*image.RGBA, error) {
	if a.Settings.TexturePath != "" {
		a.Logger.Infof("loading cloud texture %s (size %d)", a.Settings.TexturePath, a.Settings.TextureSize)
		return core.LoadTexture(a.Settings.TexturePath, a.Settings.TextureSize)
	}
	a.Logger.Infof("generating %dpx cloud texture (seed %d)", a.Settings.TextureSize, a.Settings.TextureSeed)
	return core.GenerateCloudImage(a.Settings.TextureSize, a.Settings.TextureSeed)
}

func (a *App) setupTexture() error {
	img, err := a.loadImage()
	if err != nil {
		return err
	}
	b := img.Bounds()
	a.Texture, err = a.Provider.CreateTexture(gpu.TextureDesc{
		Label:  "Clouds",
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Format: gpu.TextureRGBA8UnormSrgb,
	}, img.Pix)
	return err
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
		a.Logger.Debugf("resized to %dx%d", w, h)
	}
}

// Update advances the camera from keyboard state and keeps the sky layer
// centred over it.
func (a *App) Update() {
	a.Profiler.BeginScope("update")
	defer a.Profiler.EndScope("update")

	now := glfw.GetTime()
	dt := float32(now - a.LastTime)
	a.LastTime = now

	var forward, right float32
	if a.Window.GetKey(glfw.KeyW) == glfw.Press {
		forward++
	}
	if a.Window.GetKey(glfw.KeyS) == glfw.Press {
		forward--
	}
	if a.Window.GetKey(glfw.KeyD) == glfw.Press {
		right++
	}
	if a.Window.GetKey(glfw.KeyA) == glfw.Press {
		right--
	}
	a.Camera.Move(forward, right, dt)
	a.SkyLayer.FollowXY(a.Camera.Position)
}

// HandleCursor turns mouse motion into camera look while the cursor is captured.
func (a *App) HandleCursor(x, y float64) {
	dx, dy := x-a.MouseX, y-a.MouseY
	a.MouseX, a.MouseY = x, y
	if a.MouseCaptured {
		a.Camera.Look(float32(dx), float32(dy))
	}
}

func (a *App) ToggleCapture() {
	a.MouseCaptured = !a.MouseCaptured
	if a.MouseCaptured {
		a.Window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	} else {
		a.Window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	}
}

func (a *App) Render() error {
	a.Profiler.BeginScope("render")
	defer func() {
		a.Profiler.EndScope("render")
		a.Profiler.EndFrame(a.Logger)
	}()

	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("get current texture: %w", err)
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create view: %w", err)
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: skyColor,
		}},
	})

	if err := a.drawClouds(a.Provider.NewRenderContext(pass)); err != nil {
		_ = pass.End()
		return err
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("render pass end: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("encoder finish: %w", err)
	}
	defer cmd.Release()
	a.Queue.Submit(cmd)
	a.Surface.Present()
	return nil
}

func (a *App) drawClouds(ctx gpu.Context) error {
	ctx.SetVertexBuffer(a.VertexBuffer)
	ctx.SetIndexBuffer(a.IndexBuffer)

	world := a.SkyLayer.ObjectToWorld()
	view := a.Camera.GetViewMatrix()
	proj := a.Camera.GetProjectionMatrix(int(a.Config.Width), int(a.Config.Height))
	elapsed := float32(glfw.GetTime() - a.StartTime)

	if err := a.Shader.SetShaderParameters(ctx, world, view, proj, a.Texture, float32(a.Settings.ScrollSpeed), elapsed); err != nil {
		return err
	}
	a.Profiler.SetCount("indices", int(a.Plane.IndexCount()))
	return a.Shader.Render(ctx, a.Plane.IndexCount())
}

// Release frees GPU resources in reverse creation order.
func (a *App) Release() {
	if a.Texture != nil {
		a.Texture.Release()
	}
	if a.IndexBuffer != nil {
		a.IndexBuffer.Release()
	}
	if a.VertexBuffer != nil {
		a.VertexBuffer.Release()
	}
	if a.Shader != nil {
		a.Shader.Release()
	}
	if a.Provider != nil {
		a.Provider.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
