// DroidRig - servo choreography server.
//
// Drives PWM servo channels from timed animations, optionally in sync
// with an audio track, and exposes control over an HTTP API.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kristof/droid-rig/internal/config"
	"github.com/kristof/droid-rig/internal/log"
	"github.com/kristof/droid-rig/pkg/animation"
	"github.com/kristof/droid-rig/pkg/audio"
	"github.com/kristof/droid-rig/pkg/servo"
	"github.com/kristof/droid-rig/pkg/web"
)

func main() {
	port := flag.String("port", config.Port(config.DefaultPort), "Port to run the server on")
	configPath := flag.String("config", "servo_config.json", "Path to servo config file")
	dataDir := flag.String("data", config.DataDir("."), "Directory for audio files and animations")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	sim := flag.Bool("sim", false, "Run without PCA9685 hardware")
	flag.Parse()

	log.Init(*logLevel)

	store, err := servo.LoadStore(*configPath)
	if err != nil {
		log.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	pwm, err := openPWM(*sim)
	if err != nil {
		log.Error("failed to open PCA9685, falling back to sim mode", "err", err)
		pwm = servo.NewMockPWM()
	}

	ctrl := servo.NewController(pwm, store)
	animator := animation.NewAnimator(ctrl)

	player, err := audio.NewPlayer(filepath.Join(*dataDir, "audio_files"), store)
	if err != nil {
		log.Error("failed to init audio player", "err", err)
		os.Exit(1)
	}
	animator.SetAudio(player)

	animStore, err := animation.NewStore(filepath.Join(*dataDir, "animations"))
	if err != nil {
		log.Error("failed to init animation store", "err", err)
		os.Exit(1)
	}

	server := web.NewServer(ctrl, animator, player, animStore)

	fmt.Println("==================================================")
	fmt.Println("  DroidRig - Servo Choreography Server")
	fmt.Println("==================================================")
	fmt.Printf("  Config: %s\n", *configPath)
	fmt.Printf("  Servos: %d\n", store.NumServos())
	fmt.Printf("  Open http://localhost:%s in your browser\n", *port)
	fmt.Println("==================================================")

	// Graceful shutdown on Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		animator.Stop()
		player.Stop()
		server.Shutdown()
	}()

	if err := server.Listen(config.DefaultHost + ":" + *port); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}

// openPWM returns the hardware driver, or a mock in sim mode.
func openPWM(sim bool) (servo.PWM, error) {
	if sim {
		log.Info("running in sim mode, servo output is mocked")
		return servo.NewMockPWM(), nil
	}
	bus, err := servo.OpenBus(config.DefaultI2CBus, config.DefaultI2CAddress)
	if err != nil {
		return nil, err
	}
	return servo.NewPCA9685(bus, config.PWMFrequency)
}
