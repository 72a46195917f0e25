package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"enginebridge/internal/config"
	"enginebridge/internal/engine"
	"enginebridge/internal/enginemon"
	"enginebridge/internal/server"
	"enginebridge/internal/session"
	"enginebridge/internal/trace"
	"enginebridge/internal/uci"
)

var (
	configPath      string
	enginePath      string
	engineArgs      []string
	usePTY          bool
	logInfoLines    bool
	tracePath       string
	monitorInterval time.Duration

	port string

	analyzeFEN     string
	analyzeMoves   []string
	analyzeGoArgs  string
	analyzeTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "enginebridge",
	Short: "enginebridge - UCI engine host with stale-output filtering",
	Long: `enginebridge hosts a UCI chess engine process and filters its output.

UCI responses carry no request IDs, so output for a superseded position
can still arrive after a new command was issued. enginebridge tracks
outstanding analysis commands and ready-checks, and discards every
engine line that cannot be attributed to the most recent command.`,
}

// stderrNotifier alerts the user once when the engine stops accepting
// commands after having previously accepted at least one.
type stderrNotifier struct{}

func (stderrNotifier) EngineCrashed(err error) {
	fmt.Fprintf(os.Stderr, "enginebridge: the engine appears to have crashed: %v\n", err)
}

// loadConfig merges the config file with whatever flags were set
// explicitly on cmd. Flags win.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine = enginePath
	}
	if flags.Changed("engine-arg") {
		cfg.Args = engineArgs
	}
	if flags.Changed("pty") {
		cfg.UsePTY = usePTY
	}
	if flags.Changed("log-info-lines") {
		cfg.LogInfoLines = logInfoLines
	}
	if flags.Changed("monitor-interval") {
		cfg.MonitorInterval = config.Duration(monitorInterval)
	}
	return cfg, nil
}

// startSession spawns the engine, applies the configured UCI options and
// starts the resource monitor. bind receives the new session and returns
// the fresh and diagnostic consumers to install; this lets callers hand
// the session to whatever the consumers feed (terminal, WebSocket hub)
// before any engine output arrives. The returned cleanup stops the
// monitor and closes the transcript; it does not shut the session down.
func startSession(cfg config.Config, bind func(*session.Session) (session.Consumer, session.Consumer)) (*session.Session, func(), error) {
	if !uci.IsEngineAvailable(cfg.Engine) {
		return nil, nil, fmt.Errorf("engine %q not found", cfg.Engine)
	}

	var tw *trace.Writer
	if tracePath != "" {
		f, err := os.OpenFile(tracePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		tw = trace.NewWriter(f)
	}

	sess := session.New(nil, stderrNotifier{}, session.Options{
		LogInfoLines: cfg.LogInfoLines,
		Trace:        tw,
	})
	fresh, diag := bind(sess)

	spawn := engine.SpawnOptions{Args: cfg.Args, UsePTY: cfg.UsePTY}
	if err := sess.Setup(cfg.Engine, spawn, fresh, diag); err != nil {
		if tw != nil {
			tw.Close()
		}
		return nil, nil, err
	}

	for name, value := range cfg.Options {
		sess.SetOption(name, value)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if interval := cfg.MonitorInterval.Std(); interval > 0 {
		if mon, err := enginemon.New(int32(sess.PID())); err == nil {
			go mon.Run(ctx, interval, nil)
		}
	}

	cleanup := func() {
		cancel()
		if tw != nil {
			tw.Close()
		}
	}
	return sess, cleanup, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive engine console on stdin/stdout",
	Long: `Spawn the engine and bridge it to the terminal: lines typed on stdin
are sent as commands, filtered engine output is printed to stdout,
engine diagnostics go to stderr. EOF (Ctrl-D) shuts the session down.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		interactive := term.IsTerminal(int(os.Stdin.Fd()))

		prompt := func() {
			if interactive {
				fmt.Fprint(os.Stderr, "> ")
			}
		}

		sess, cleanup, err := startSession(cfg, func(*session.Session) (session.Consumer, session.Consumer) {
			return func(line string) { fmt.Println(line) },
				func(line string) { fmt.Fprintln(os.Stderr, line) }
		})
		if err != nil {
			return err
		}
		defer cleanup()

		prompt()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			command := strings.TrimSpace(scanner.Text())
			if command == "" {
				prompt()
				continue
			}
			if command == uci.KeywordQuit {
				break
			}
			sess.Send(command)
			prompt()
		}

		sess.Shutdown()
		return sess.Wait()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine session over a WebSocket console",
	Long: `Spawn the engine and expose it on a local HTTP port: a browser
console at / and a WebSocket at /ws. Commands from any connected client
go through the same session, and filtered engine output is broadcast to
all clients.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var srv *server.Server
		sess, cleanup, err := startSession(cfg, func(s *session.Session) (session.Consumer, session.Consumer) {
			srv = server.New(s)
			return srv.EngineLine, srv.DiagnosticLine
		})
		if err != nil {
			return err
		}
		defer cleanup()
		defer sess.Shutdown()

		return srv.Run(port)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis and print the engine's best move",
	Long: `Spawn the engine, set up the given position, run one "go" command and
print the resulting bestmove line. All engine output that the staleness
filter lets through is printed; the command exits when the result line
arrives or the timeout elapses.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		result := make(chan string, 1)
		sess, cleanup, err := startSession(cfg, func(*session.Session) (session.Consumer, session.Consumer) {
			fresh := func(line string) {
				fmt.Println(line)
				if uci.IsResultLine(line) {
					select {
					case result <- line:
					default:
					}
				}
			}
			diag := func(line string) { fmt.Fprintln(os.Stderr, line) }
			return fresh, diag
		})
		if err != nil {
			return err
		}
		defer cleanup()

		sess.Send(uci.KeywordUCINewGame)
		sess.Send(uci.Position(analyzeFEN, analyzeMoves))
		sess.Send(uci.Go(analyzeGoArgs))

		select {
		case <-result:
		case <-time.After(analyzeTimeout):
			sess.Send(uci.KeywordStop)
			select {
			case <-result:
			case <-time.After(5 * time.Second):
				sess.Shutdown()
				return fmt.Errorf("no result from engine within %v", analyzeTimeout)
			}
		}

		sess.Shutdown()
		return sess.Wait()
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, serveCmd, analyzeCmd} {
		cmd.Flags().StringVarP(&configPath, "config", "c", "enginebridge.yaml", "Path to the YAML config file")
		cmd.Flags().StringVarP(&enginePath, "engine", "e", "stockfish", "Engine executable (path or PATH lookup)")
		cmd.Flags().StringArrayVar(&engineArgs, "engine-arg", nil, "Argument passed to the engine (repeatable)")
		cmd.Flags().BoolVar(&usePTY, "pty", false, "Run the engine on a pseudo-terminal")
		cmd.Flags().BoolVar(&logInfoLines, "log-info-lines", false, "Log engine search output and discarded stale lines")
		cmd.Flags().StringVar(&tracePath, "trace", "", "Record all session traffic to this transcript file")
		cmd.Flags().DurationVar(&monitorInterval, "monitor-interval", 0, "Log engine resource usage at this interval (0 disables)")
	}

	serveCmd.Flags().StringVarP(&port, "port", "p", "22180", "Port to listen on")

	analyzeCmd.Flags().StringVar(&analyzeFEN, "fen", "", "Position as FEN (default: starting position)")
	analyzeCmd.Flags().StringArrayVar(&analyzeMoves, "move", nil, "Move applied to the position (repeatable)")
	analyzeCmd.Flags().StringVar(&analyzeGoArgs, "go-args", "movetime 1000", "Arguments for the go command")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 30*time.Second, "Give up waiting for a result after this long")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
