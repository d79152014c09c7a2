package main

import (
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/ptyhost"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

func newRunCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run [command [args...]]",
		Short: "Run a command through the engine on the local terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())

			opts := toPaneOptions(cfg.PTY)
			if len(args) > 0 {
				opts.Command = args[0]
				opts.Args = args[1:]
			}

			stdout := os.Stdout
			emu := &localEmulator{out: stdout}
			if cols, rows, err := term.GetSize(int(stdout.Fd())); err == nil {
				emu.setSize(cols, rows)
				opts.Cols = cols
				opts.Rows = rows
			}

			svc := core.NewService(core.ServiceDeps{Logger: logger})
			host, err := ptyhost.Start(cmd.Context(), svc, "local", cfg.Engine.Schema(), opts, core.SessionDeps{
				Emulator: emu,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			defer host.Close()

			stdinFd := int(os.Stdin.Fd())
			if term.IsTerminal(stdinFd) {
				oldState, rawErr := term.MakeRaw(stdinFd)
				if rawErr != nil {
					return rawErr
				}
				defer func() { _ = term.Restore(stdinFd, oldState) }()
			}

			winch := make(chan os.Signal, 1)
			signal.Notify(winch, syscall.SIGWINCH)
			defer signal.Stop(winch)
			go func() {
				for range winch {
					cols, rows, sizeErr := term.GetSize(int(stdout.Fd()))
					if sizeErr != nil {
						continue
					}
					emu.setSize(cols, rows)
					if resizeErr := host.Resize(cols, rows); resizeErr != nil {
						logger.Warn("resize failed", "err", resizeErr)
					}
				}
			}()

			go func() {
				_, _ = io.Copy(host, os.Stdin)
			}()

			_ = host.Wait()
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

// localEmulator targets the invoking terminal: batches go to stdout and
// geometry tracks the real window size. Mode and color queries fall back
// to the registry defaults.
type localEmulator struct {
	out io.Writer

	mu   sync.Mutex
	cols int
	rows int
}

func (l *localEmulator) setSize(cols, rows int) {
	l.mu.Lock()
	l.cols, l.rows = cols, rows
	l.mu.Unlock()
}

func (l *localEmulator) WriteOutput(text string) {
	_, _ = io.WriteString(l.out, text)
}

func (l *localEmulator) CursorPos() (int, int) { return 0, 0 }

func (l *localEmulator) ForegroundColor() schema.RGB { return 0 }

func (l *localEmulator) BackgroundColor() schema.RGB { return 0 }

func (l *localEmulator) ModeState(mode int) schema.ModeState { return schema.ModeUnknown }

func (l *localEmulator) KeyboardFlags() int { return 0 }

func (l *localEmulator) Geometry() schema.Geometry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return schema.Geometry{Cols: l.cols, Rows: l.rows}
}
