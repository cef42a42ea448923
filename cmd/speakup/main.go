// Command speakup is the command-line client for the announcement daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/speakuplabs/speakup-core/internal/api"
	"github.com/speakuplabs/speakup-core/internal/ledger"
)

var version = "0.1.0-dev"

const defaultPort = 7849

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'speak', 'status', 'history', 'stop', 'service', 'health', or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "speak":
		err = runSpeak(os.Args[2:])
	case "service":
		err = runService(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "stop":
		err = runStop(os.Args[2:])
	case "health":
		err = runHealth(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, api.ErrUnreachable) {
			fmt.Fprintln(os.Stderr, "speakup daemon is not running (start it with speakupd)")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newClient(port int) (*api.Client, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	return api.NewClient(port, 10*time.Second), ctx, cancel
}

func runSpeak(args []string) error {
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	port := fs.Int("port", defaultPort, "Daemon control port")
	project := fs.String("project", "", "Project label spoken before the text")
	toneName := fs.String("tone", "neutral", "Delivery tone")
	speed := fs.Float64("speed", 1.0, "Speech speed multiplier")
	announce := fs.String("announce", "prefix", "Announce style: none, prefix, or full")
	fs.Parse(args)

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		return errors.New("usage: speakup speak [flags] <text>")
	}

	client, ctx, cancel := newClient(*port)
	defer cancel()
	resp, err := client.Speak(ctx, api.SpeakRequest{
		Text:     text,
		Project:  *project,
		Tone:     *toneName,
		Speed:    *speed,
		Announce: *announce,
	})
	if err != nil {
		return err
	}
	fmt.Printf("queued #%d (position %d)\n", resp.MessageID, resp.QueuePosition)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	port := fs.Int("port", defaultPort, "Daemon control port")
	fs.Parse(args)

	client, ctx, cancel := newClient(*port)
	defer cancel()
	resp, err := client.Status(ctx)
	if err != nil {
		return err
	}

	if resp.Playing != nil {
		fmt.Printf("playing  #%d %s\n", resp.Playing.ID, describe(*resp.Playing))
	} else {
		fmt.Println("playing  (nothing)")
	}
	fmt.Printf("queued   %d\n", resp.QueueSize)
	for i, e := range resp.Queued {
		fmt.Printf("  %d. #%d %s\n", i+1, e.ID, describe(e))
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	port := fs.Int("port", defaultPort, "Daemon control port")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	fs.Parse(args)

	client, ctx, cancel := newClient(*port)
	defer cancel()
	resp, err := client.History(ctx, *limit)
	if err != nil {
		return err
	}
	if len(resp.Messages) == 0 {
		fmt.Println("no history")
		return nil
	}
	for _, e := range resp.Messages {
		duration := ""
		if e.DurationMS != nil {
			duration = fmt.Sprintf(" %.0fms", *e.DurationMS)
		}
		fmt.Printf("#%-4d %-8s%s %s\n", e.ID, e.Status, duration, describe(e))
	}
	return nil
}

func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	port := fs.Int("port", defaultPort, "Daemon control port")
	fs.Parse(args)

	client, ctx, cancel := newClient(*port)
	defer cancel()
	resp, err := client.Stop(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d request(s)\n", resp.Cleared)
	return nil
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	port := fs.Int("port", defaultPort, "Daemon control port")
	fs.Parse(args)

	client, ctx, cancel := newClient(*port)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func describe(e ledger.Entry) string {
	if e.Project != "" {
		return fmt.Sprintf("[%s] %s", e.Project, e.Text)
	}
	return e.Text
}
