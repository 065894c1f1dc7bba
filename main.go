package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/glasskit/lenslink/internal/app"
	"github.com/glasskit/lenslink/internal/bluetooth"
	"github.com/glasskit/lenslink/internal/config"
	"github.com/glasskit/lenslink/internal/link"
	"github.com/glasskit/lenslink/internal/logging"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogFile  string
	flagDemo     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lenslink",
		Short: "Dual-lens BLE connection manager for smart glasses",
		Long: `lenslink maintains the Bluetooth Low Energy links to both lenses of a
pair of smart glasses. It discovers the left and right peripherals, connects
them over the Nordic UART service, and keeps both links alive with periodic
heartbeats and automatic reconnection.

Real hardware access goes through BlueZ and usually needs CAP_NET_ADMIN.
Use --demo to drive everything against simulated glasses instead.`,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultFile, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level override (trace..error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Log file override")
	rootCmd.PersistentFlags().BoolVar(&flagDemo, "demo", false, "Use simulated glasses instead of real Bluetooth hardware")

	rootCmd.AddCommand(
		connectCmd(),
		scanCmd(),
		statusCmd(),
		unpairCmd(),
		silentCmd(),
		watchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type wiring struct {
	cfg   *config.Config
	log   *logrus.Logger
	coord *link.Coordinator
}

func wire() (*wiring, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	file := cfg.LogFile
	if flagLogFile != "" {
		file = flagLogFile
	}
	log, err := logging.Setup(level, file)
	if err != nil {
		return nil, err
	}

	opts := link.Options{Config: cfg, Log: log}
	if flagDemo {
		mock := demoCentral()
		opts.Dialer = mock
		opts.Scanner = mock
		opts.Enumerator = mock
		opts.Pairer = mock
	} else {
		central := bluetooth.NewCentral(log)
		if err := central.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
			fmt.Fprintln(os.Stderr, "Bluetooth access requires elevated permissions.")
			fmt.Fprintln(os.Stderr, "Try one of:")
			fmt.Fprintln(os.Stderr, "  sudo lenslink ...")
			fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./lenslink")
			fmt.Fprintln(os.Stderr, "  lenslink --demo       (simulated glasses, no hardware needed)")
			return nil, err
		}
		opts.Dialer = central
		opts.Scanner = central

		enum, err := bluetooth.NewBlueZEnumerator(log)
		if err != nil {
			log.WithError(err).Warn("BlueZ enumeration unavailable, relying on active scans")
		} else {
			opts.Enumerator = enum
		}
		pairer, err := bluetooth.NewBlueZPairer(log)
		if err != nil {
			log.WithError(err).Warn("BlueZ pairing unavailable")
		} else {
			opts.Pairer = pairer
		}
	}

	return &wiring{cfg: cfg, log: log, coord: link.New(opts)}, nil
}

// demoCentral fakes a bonded pair of glasses so every command can run
// end to end without an adapter.
func demoCentral() *bluetooth.MockCentral {
	mock := bluetooth.NewMockCentral()
	mock.AddPeripheral(&bluetooth.MockPeripheral{
		Name:       "Even G1_L_D4E5",
		Address:    "C4:5A:10:00:0D:4E",
		Advertised: true,
	})
	mock.AddPeripheral(&bluetooth.MockPeripheral{
		Name:       "Even G1_R_D4E5",
		Address:    "C4:5A:10:00:0D:4F",
		Advertised: true,
	})
	mock.SetPairingOK(true)
	return mock
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect both lenses and keep the links alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wire()
			if err != nil {
				return err
			}
			if err := w.coord.ConnectBoth(); err != nil {
				return err
			}
			fmt.Printf("connected: left %s, right %s\n",
				w.cfg.Address(bluetooth.Left), w.cfg.Address(bluetooth.Right))
			w.coord.DisconnectBoth()
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Discover the left and right lenses and save their addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wire()
			if err != nil {
				return err
			}
			if !w.coord.Scan() {
				return fmt.Errorf("could not find both lenses")
			}
			fmt.Printf("left:  %s (%s)\n", w.cfg.Address(bluetooth.Left), w.cfg.Name(bluetooth.Left))
			fmt.Printf("right: %s (%s)\n", w.cfg.Address(bluetooth.Right), w.cfg.Name(bluetooth.Right))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved pairing state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			for _, side := range bluetooth.Sides {
				addr := cfg.Address(side)
				if addr == "" {
					fmt.Printf("%-5s not paired\n", side)
					continue
				}
				fmt.Printf("%-5s %s (%s)\n", side, addr, cfg.Name(side))
			}
			return nil
		},
	}
}

func unpairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Forget the saved lenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			cfg.Unpair()
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println("saved addresses cleared")
			return nil
		},
	}
}

func silentCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "silent [on|off]",
		Short:     "Toggle silent mode on both lenses",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wire()
			if err != nil {
				return err
			}
			if err := w.coord.ConnectBoth(); err != nil {
				return err
			}
			defer w.coord.DisconnectBoth()
			w.coord.SetSilentMode(args[0] == "on")
			fmt.Println("silent mode", args[0])
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Connect and watch both links in an interactive dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wire()
			if err != nil {
				return err
			}
			go func() {
				if err := w.coord.ConnectBoth(); err != nil {
					w.log.WithError(err).Error("initial connect failed")
				}
			}()

			p := tea.NewProgram(app.NewModel(w.coord), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}
