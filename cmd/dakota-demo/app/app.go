// Package app wires a window, Vulkan device, renderer, pipeline and
// swapchain together and drives the redraw loop that dakota-demo's cobra
// command kicks off (ground: vala.go's main(), adapted to GLFW and to
// dakota.Scene/Output instead of vala's own ECS+canvas stack).
package app

import (
	"fmt"
	"os"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/NOT-REAL-GAMES/dakota/dakota"
	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/internal/logging"
	"github.com/NOT-REAL-GAMES/dakota/pipeline"
	"github.com/NOT-REAL-GAMES/dakota/renderer"
	"github.com/NOT-REAL-GAMES/dakota/swapchain"
)

// DefaultConfig returns dakota-demo's starting configuration.
func DefaultConfig() dakota.Config { return dakota.DefaultConfig() }

// LoadConfig reads a TOML configuration file for dakota-demo.
func LoadConfig(path string) (dakota.Config, error) { return dakota.LoadConfig(path) }

// Run opens a window sized per cfg, loads the scene document at scenePath
// using the font at fontPath as the scene's default font, and presents the
// scene until the window is closed.
func Run(cfg dakota.Config, scenePath, fontPath string) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("dakota-demo: glfw init: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(int(cfg.Window.Width), int(cfg.Window.Height), cfg.Window.Title, nil, nil)
	if err != nil {
		return fmt.Errorf("dakota-demo: create window: %w", err)
	}
	defer window.Destroy()

	instanceCfg := device.Config{
		ApplicationName:   cfg.Window.Title,
		EnableValidation:  cfg.Window.ValidationLayers,
		PreferredGPUIndex: cfg.Window.PreferredGPUIndex,
		ExtraInstanceExts: window.GetRequiredInstanceExtensions(),
	}
	instance, err := device.NewInstance(instanceCfg, nil)
	if err != nil {
		return fmt.Errorf("dakota-demo: create instance: %w", err)
	}

	dev, err := device.New(instance, instanceCfg, nil)
	if err != nil {
		return fmt.Errorf("dakota-demo: create device: %w", err)
	}
	defer dev.Destroy()

	backend, err := swapchain.NewVkSurface(dev, instance, window)
	if err != nil {
		return fmt.Errorf("dakota-demo: create surface: %w", err)
	}

	presentQueue, _ := dev.GraphicsQueue()
	swap, err := swapchain.New(dev.Handle(), backend, presentQueue)
	if err != nil {
		return fmt.Errorf("dakota-demo: create swapchain: %w", err)
	}

	rend, err := renderer.New(dev, 256, swap.State().SurfaceFormat.Format)
	if err != nil {
		return fmt.Errorf("dakota-demo: create renderer: %w", err)
	}

	pipe, err := pipeline.New(dev, rend, swap.State().Views, swap.State().Resolution, pipeline.Config{
		SurfaceFormat:  swap.State().SurfaceFormat.Format,
		VertexSource:   pipeline.DefaultVertexSource,
		FragmentSource: pipeline.DefaultFragmentSource,
	})
	if err != nil {
		return fmt.Errorf("dakota-demo: create pipeline: %w", err)
	}

	defaultFontData, err := os.ReadFile(fontPath)
	if err != nil {
		return fmt.Errorf("dakota-demo: read font: %w", err)
	}

	sceneFile, err := os.Open(scenePath)
	if err != nil {
		return fmt.Errorf("dakota-demo: open scene: %w", err)
	}
	defer sceneFile.Close()

	scene, err := dakota.LoadSceneXML(sceneFile, dev, rend, defaultFontData, cfg.Font.DefaultPixelSize)
	if err != nil {
		return fmt.Errorf("dakota-demo: load scene: %w", err)
	}

	res := swap.State().Resolution
	vout := dakota.NewVirtualOutput(int32(res.Width), int32(res.Height))
	out := dakota.NewOutput(dev, swap, pipe)

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		vout.SetSize(dom.Size[int32]{Width: int32(width), Height: int32(height)})
	})
	window.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		pos := vout.MousePos()
		vout.PushEvent(dakota.PlatformEvent{
			Kind: dakota.PlatformEventInputMouseMove,
			DX:   int32(x) - pos.X,
			DY:   int32(y) - pos.Y,
		})
	})
	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		pos := vout.MousePos()
		if err := vout.HandleScrolling(scene, [2]int32{pos.X, pos.Y}, [2]float32{float32(xoff), float32(yoff)}); err != nil {
			logging.Error(err)
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()

		for {
			if _, ok := vout.PopEvent(); !ok {
				break
			}
		}

		if scene.NeedsRefresh() {
			if err := scene.Recompile(vout); err != nil {
				return fmt.Errorf("dakota-demo: recompile: %w", err)
			}
		}

		if err := out.Redraw(vout, scene); err != nil {
			return fmt.Errorf("dakota-demo: redraw: %w", err)
		}

		if _, ok := out.PopEvent(); ok {
			if err := out.HandleResize(); err != nil {
				return fmt.Errorf("dakota-demo: handle resize: %w", err)
			}
		}
	}

	return nil
}
