// gesture-sim streams scripted head motions to a gestured server and prints what it sees.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
	"github.com/teslashibe/go-headgesture/pkg/posestream"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
)

// step is one scripted sample, or a reset when reset is set.
type step struct {
	sample gesture.Sample
	reset  bool
}

func yaws(vals ...float64) []step {
	out := make([]step, len(vals))
	for i, v := range vals {
		out[i] = step{sample: gesture.Sample{Yaw: v}}
	}
	return out
}

func pitches(vals ...float64) []step {
	out := make([]step, len(vals))
	for i, v := range vals {
		out[i] = step{sample: gesture.Sample{Pitch: v}}
	}
	return out
}

var scripts = map[string][]step{
	"nod":   yaws(0, 1, 0, 1, 0),
	"shake": pitches(0, 1, 0, 1, 0),
	// Switching axes mid-gesture discards the vertical history
	"conflict": append(yaws(0, 1, 0), step{sample: gesture.Sample{Yaw: 0, Pitch: 1}}, step{sample: gesture.Sample{Pitch: 0}}),
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws/pose", "gestured pose websocket URL")
	stream := flag.String("stream", "sim", "Stream ID")
	script := flag.String("script", "all", "Script to play: nod, shake, conflict or all")
	interval := flag.Duration("interval", 200*time.Millisecond, "Delay between samples")
	flag.Parse()

	plan, err := buildPlan(*script)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	target := strings.TrimSuffix(*url, "/") + "/" + *stream
	c, err := posestream.Dial(ctx, target)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer c.Close()
	fmt.Printf("🔌 Connected to %s\n", target)

	go printReplies(c)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for _, s := range plan {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.reset {
			fmt.Println("↺  reset")
			err = c.SendReset()
		} else {
			fmt.Printf("→  yaw=%+.2f pitch=%+.2f\n", s.sample.Yaw, s.sample.Pitch)
			err = c.SendSample(s.sample)
		}
		if err != nil {
			log.Fatalf("❌ Send failed: %v", err)
		}
	}

	// Let the last replies arrive
	select {
	case <-ctx.Done():
	case <-time.After(*interval + 250*time.Millisecond):
	}
	fmt.Println("✅ Done")
}

// buildPlan concatenates the named scripts, resetting between each.
func buildPlan(name string) ([]step, error) {
	names := []string{name}
	if name == "all" {
		names = []string{"nod", "shake", "conflict"}
	}
	var plan []step
	for i, n := range names {
		s, ok := scripts[n]
		if !ok {
			return nil, fmt.Errorf("unknown script %q", n)
		}
		if i > 0 {
			plan = append(plan, step{reset: true})
		}
		plan = append(plan, s...)
	}
	return plan, nil
}

func printReplies(c *posestream.Client) {
	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		switch msg.Type {
		case protocol.TypeState:
			st, err := msg.GetStateData()
			if err != nil {
				continue
			}
			fmt.Printf("   state: direction=%-10s history=%v gesture=%s\n",
				orDash(st.DirectionLabel), st.History, orDash(st.GestureLabel))
		case protocol.TypeGesture:
			g, err := msg.GetGestureData()
			if err != nil {
				continue
			}
			fmt.Printf("🎯 %s (%s) #%d\n", g.Gesture, g.Label, g.Matches)
		case protocol.TypeError:
			e, err := msg.GetErrorData()
			if err != nil {
				continue
			}
			fmt.Fprintf(os.Stderr, "⚠️  server error: %s\n", e.Message)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
