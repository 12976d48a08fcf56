// Command jolt is the terminal client's composition root. It wires
// internal/client.Session to standard output; actual view/table/graph
// rendering is out of scope (spec.md's Non-goals), so "watch" prints one
// line per update rather than drawing a screen.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/client"
	"github.com/cptspacemanspiff/jolt/internal/protocol"
	"github.com/cptspacemanspiff/jolt/internal/sensor"
)

const defaultSocketPath = "/run/jolt/daemon.sock"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: jolt <watch|status|hourly|daily|sessions|cycles> [flags]")
		return 1
	}

	switch args[0] {
	case "watch":
		return runWatch(args[1:])
	case "status":
		return runStatus(args[1:])
	case "hourly":
		return runHourly(args[1:])
	case "daily":
		return runDaily(args[1:])
	case "sessions":
		return runSessions(args[1:])
	case "cycles":
		return runCycles(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 1
	}
}

func socketFlag(fs *flag.FlagSet) *string {
	return fs.String("socket", defaultSocketPath, "daemon socket path")
}

// spawnDaemon auto-starts the collector daemon per spec §4.8 item 1, when
// no socket is listening. It execs the daemon binary detached rather than
// re-implementing its startup sequence here.
func spawnDaemon() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	daemonPath := self + "-daemon"
	if _, err := os.Stat(daemonPath); err != nil {
		daemonPath = "jolt-daemon"
	}
	cmd := exec.Command(daemonPath, "start")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Start()
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	socketPath := socketFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sess := client.NewSession(client.Options{
		SocketPath: *socketPath,
		Spawn:      spawnDaemon,
		Local:      sensor.DetectProvider(),
	})

	go sess.Run(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			snap, ok, usingDaemon, stale := sess.Latest()
			if !ok {
				fmt.Println("waiting for data...")
				continue
			}
			source := "daemon"
			if !usingDaemon {
				source = "local"
			}
			staleMark := ""
			if stale {
				staleMark = " (stale)"
			}
			fmt.Printf("%s  %.1f%%  %s  %.2fW  src=%s%s\n",
				time.Unix(snap.Timestamp, 0).Format(time.RFC3339),
				snap.Battery.ChargePercent,
				snap.Battery.State,
				snap.Power.SystemPowerWatts,
				source, staleMark)
		}
	}
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	socketPath := socketFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	c, err := client.Connect(*socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon not running")
		return 1
	}
	defer c.Close()

	status, err := c.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, "get status:", err)
		return 1
	}
	if !protocol.SupportedBy(status, protocol.ProtocolVersion) {
		fmt.Fprintf(os.Stderr, "daemon protocol version %d outside this client's supported range [%d,%d]\n",
			status.ProtocolVersion, status.MinSupportedVersion, protocol.ProtocolVersion)
		return 3
	}
	return printJSON(status)
}

func runHourly(args []string) int {
	fs := flag.NewFlagSet("hourly", flag.ContinueOnError)
	socketPath := socketFlag(fs)
	from := fs.Int64("from", 0, "from unix timestamp")
	to := fs.Int64("to", time.Now().Unix(), "to unix timestamp")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	c, err := client.Connect(*socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon not running")
		return 1
	}
	defer c.Close()

	rows, err := c.GetHourlyStats(*from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get hourly stats:", err)
		return 1
	}
	return printJSON(rows)
}

func runDaily(args []string) int {
	fs := flag.NewFlagSet("daily", flag.ContinueOnError)
	socketPath := socketFlag(fs)
	from := fs.String("from", "", "from date YYYY-MM-DD")
	to := fs.String("to", "", "to date YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	c, err := client.Connect(*socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon not running")
		return 1
	}
	defer c.Close()

	rows, err := c.GetDailyStats(*from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get daily stats:", err)
		return 1
	}
	return printJSON(rows)
}

func runSessions(args []string) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	socketPath := socketFlag(fs)
	from := fs.Int64("from", 0, "from unix timestamp")
	to := fs.Int64("to", time.Now().Unix(), "to unix timestamp")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	c, err := client.Connect(*socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon not running")
		return 1
	}
	defer c.Close()

	rows, err := c.GetChargeSessions(*from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get charge sessions:", err)
		return 1
	}
	return printJSON(rows)
}

func runCycles(args []string) int {
	fs := flag.NewFlagSet("cycles", flag.ContinueOnError)
	socketPath := socketFlag(fs)
	days := fs.Int("days", 30, "lookback window in days")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	c, err := client.Connect(*socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon not running")
		return 1
	}
	defer c.Close()

	summary, err := c.GetCycleSummary(*days)
	if err != nil {
		fmt.Fprintln(os.Stderr, "get cycle summary:", err)
		return 1
	}
	return printJSON(summary)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		return 1
	}
	return 0
}
