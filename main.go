/*
Demo entry point: runs the testbed scene on the headless device so the
painter can be watched end to end without a native GPU adapter. Swap the
device and surface constructors for a native implementation to paint on a
real window.
*/
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spaghettifunk/fresco/painter"
	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
	"github.com/spaghettifunk/fresco/painter/gpu/headless"
	"github.com/spaghettifunk/fresco/painter/metadata"
	"github.com/spaghettifunk/fresco/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "painter configuration file")
	flag.Parse()

	config, err := painter.LoadConfig(*configPath)
	if err != nil {
		core.LogWarn("no usable config at %s, running on defaults", *configPath)
		config = painter.DefaultConfig()
	}

	device := headless.NewDevice()
	surface := headless.NewSurface(device, 1280, 720, gpu.TextureFormatBGRA8UnormSrgb)

	p, err := painter.New(config, device, surface)
	if err != nil {
		panic(err)
	}

	width, height := surface.Size()
	app, err := testbed.NewApp(p, config.ShaderDir, width, height)
	if err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		surface.Close()
	}()

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	last := time.Now()
	for !p.Closed() {
		select {
		case now := <-ticker.C:
			delta := now.Sub(last).Seconds()
			last = now
			if err := app.Frame(delta); err != nil {
				if errors.Is(err, gpu.ErrDeviceLost) {
					core.LogError("device lost, shutting down")
					p.Close()
					os.Exit(1)
				}
				if errors.Is(err, gpu.ErrSurfaceLost) || errors.Is(err, gpu.ErrAcquireTimeout) {
					if rerr := p.Reconfigure(); rerr != nil {
						core.LogError("reconfigure after surface loss: %s", rerr.Error())
					}
					continue
				}
				var fe *metadata.FrameError
				if errors.As(err, &fe) && !fe.Abandoned {
					// Shader edit broke a pipeline; the frame painted with the
					// previous build and the diagnostic is already logged.
					continue
				}
				core.LogError("frame failed: %s", err.Error())
			}
		case <-report.C:
			fps, frameTime := p.Metrics().Frame()
			core.LogInfo("%d frames painted, %.0f fps, %.2f ms/frame", p.Metrics().TotalFrames(), fps, frameTime)
		}
	}

	if err := p.Close(); err != nil {
		core.LogError("closing painter: %s", err.Error())
	}
}
