package main

import (
	"flag"
	"runtime"

	"github.com/gekko3d/clouds"
	"github.com/gekko3d/clouds/skyrt/rt/app"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	cfg := clouds.DefaultConfig()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	logger := clouds.NewDefaultLogger(cfg.LogPrefix, cfg.Debug)

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.WindowWidth, cfg.WindowHeight, cfg.WindowTitle, nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, cfg, logger)
	defer application.Release()
	if err := application.Init(); err != nil {
		panic(err)
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})

	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		application.HandleCursor(xpos, ypos)
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyTab:
			application.ToggleCapture()
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyF3:
			logger.SetDebug(!logger.DebugEnabled())
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		if err := application.Render(); err != nil {
			logger.Errorf("frame: %v", err)
		}
	}
}
