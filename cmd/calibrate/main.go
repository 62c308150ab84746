// Calibrate - audio sync calibration tool for droid-rig.
//
// Repeatedly plays the selected audio track while nudging a servo, so
// you can adjust the latency offset until sound and motion line up.
// Talks to a running droidrig server over its HTTP API and follows the
// live status websocket to know when each test finishes.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kristof/droid-rig/internal/httpc"
)

type servoConfig struct {
	MinPulse    int `json:"min_pulse"`
	MaxPulse    int `json:"max_pulse"`
	CenterPulse int `json:"center_pulse"`
}

type rigStatus struct {
	Animating bool `json:"animating"`
}

func main() {
	server := flag.String("server", "http://localhost:5000", "droidrig server URL")
	channel := flag.Int("channel", 0, "Servo channel to test")
	offset := flag.Int("offset", 150, "Starting offset in ms")
	flag.Parse()

	base := strings.TrimRight(*server, "/")

	cfg, err := fetchServoConfig(base, *channel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot reach server: %v\n", err)
		os.Exit(1)
	}

	var animating atomic.Bool
	go watchStatus(base, &animating)

	fmt.Println("==================================================")
	fmt.Println("  AUDIO SYNC CALIBRATION")
	fmt.Println("==================================================")
	fmt.Println(`
Instructions:
  1. Watch the servo and listen for the audio
  2. They should happen at the SAME time
  3. Adjust the offset based on what you observe:

     Servo moves BEFORE audio -> Increase offset (+)
     Servo moves AFTER audio  -> Decrease offset (-) or go NEGATIVE

Commands:
  Enter     - Run test with current offset
  +50 / -50 - Adjust offset (or any number)
  q         - Quit and show final offset`)

	cur := clampOffset(*offset)
	scanner := bufio.NewScanner(os.Stdin)
loop:
	for {
		fmt.Printf("\n[Offset: %dms] Press Enter to test, or +/-N to adjust: ", cur)
		if !scanner.Scan() {
			break
		}
		cmd := strings.TrimSpace(scanner.Text())

		switch {
		case cmd == "q" || cmd == "Q":
			break loop
		case cmd == "":
			if err := runTest(base, *channel, cur, cfg, &animating); err != nil {
				fmt.Printf("   Test failed: %v\n", err)
			}
		default:
			next, err := adjustOffset(cur, cmd)
			if err != nil {
				fmt.Println("   Unknown command. Use Enter, +N, -N, or 'q'")
				continue
			}
			cur = next
			fmt.Printf("   Offset set to %dms\n", cur)
		}
	}

	fmt.Println("\n==================================================")
	fmt.Println("  CALIBRATION COMPLETE")
	fmt.Printf("  Recommended offset: %dms\n", cur)
	fmt.Println("==================================================")
	fmt.Printf(`
To apply this offset:

  curl -X POST %s/audio/offset \
    -H "Content-Type: application/json" \
    -d '{"offset_ms": %d}'
`, base, cur)
}

// adjustOffset applies a +N / -N / absolute-number command.
func adjustOffset(cur int, cmd string) (int, error) {
	switch {
	case strings.HasPrefix(cmd, "+"):
		n := 25
		if cmd != "+" {
			v, err := strconv.Atoi(cmd[1:])
			if err != nil {
				return 0, err
			}
			n = v
		}
		return clampOffset(cur + n), nil
	case strings.HasPrefix(cmd, "-"):
		n := 25
		if cmd != "-" {
			v, err := strconv.Atoi(cmd[1:])
			if err != nil {
				return 0, err
			}
			n = v
		}
		return clampOffset(cur - n), nil
	default:
		v, err := strconv.Atoi(cmd)
		if err != nil {
			return 0, err
		}
		return clampOffset(v), nil
	}
}

func clampOffset(ms int) int {
	if ms < -500 {
		return -500
	}
	if ms > 1000 {
		return 1000
	}
	return ms
}

// runTest sets the offset on the server and plays a short keyframe pair
// (center -> max -> center) with audio, then waits for the rig to go idle.
func runTest(base string, channel, offset int, cfg servoConfig, animating *atomic.Bool) error {
	fmt.Printf("\n   Testing with offset: %dms\n", offset)
	fmt.Println("   Watch the servo and listen...")

	if err := postJSON(base+"/audio/offset", map[string]int{"offset_ms": offset}); err != nil {
		return err
	}

	ch := strconv.Itoa(channel)
	payload := map[string]any{
		"with_audio": true,
		"keyframes": []map[string]any{
			{"servos": map[string]int{ch: cfg.MaxPulse}, "duration": 150},
			{"servos": map[string]int{ch: cfg.CenterPulse}, "duration": 150},
		},
	}
	if err := postJSON(base+"/play", payload); err != nil {
		return err
	}

	// Give the status stream a moment to register the run, then wait
	// for idle, bounded so a missed update cannot hang the prompt.
	startWait := time.Now().Add(time.Second)
	for time.Now().Before(startWait) && !animating.Load() {
		time.Sleep(50 * time.Millisecond)
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && animating.Load() {
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func fetchServoConfig(base string, channel int) (servoConfig, error) {
	var cfg servoConfig
	resp, err := httpc.Get(fmt.Sprintf("%s/servo/%d/config", base, channel))
	if err != nil {
		return cfg, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return cfg, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	err = json.NewDecoder(resp.Body).Decode(&cfg)
	return cfg, err
}

func postJSON(url string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	resp, err := httpc.Post(url, "application/json", data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// watchStatus follows the live status websocket, reconnecting on error.
func watchStatus(base string, animating *atomic.Bool) {
	u, err := url.Parse(base)
	if err != nil {
		return
	}
	wsURL := "ws://" + u.Host + "/ws/status"

	for {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			time.Sleep(time.Second)
			continue
		}
		for {
			var st rigStatus
			if err := conn.ReadJSON(&st); err != nil {
				break
			}
			animating.Store(st.Animating)
		}
		conn.Close()
		time.Sleep(time.Second)
	}
}
