package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"

	"github.com/spf13/cobra"

	"github.com/leonardotrapani/neurotype/internal/bus"
	"github.com/leonardotrapani/neurotype/internal/classifier"
	"github.com/leonardotrapani/neurotype/internal/config"
	"github.com/leonardotrapani/neurotype/internal/daemon"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/output"
	"github.com/leonardotrapani/neurotype/internal/store"
	"github.com/leonardotrapani/neurotype/internal/tui"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "neurotype",
	Short: "Type with your thoughts using an EEG headset",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		recordCmd(),
		trainCmd(),
		commandCmd("connect", "Connect to the headset", bus.CmdConnect),
		commandCmd("disconnect", "Disconnect from the headset", bus.CmdDisconnect),
		statusCmd(),
		versionCmd(),
		commandCmd("stop", "Stop the daemon", bus.CmdQuit),
		configureCmd(),
		modelCmd(),
		doctorCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg := manager.GetConfig()
			logging.Init(cfg.ToLoggingConfig())

			d, err := daemon.New(cfg, daemon.Options{Manager: manager})
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}
}

// commandCmd builds a subcommand that forwards a single bus command.
func commandCmd(use, short, busCmd string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.Call(busCmd)
			if err != nil {
				return fmt.Errorf("failed to %s: %w", use, err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Control letter recording",
	}
	cmd.AddCommand(
		commandCmd("start", "Start the countdown and collect letters", bus.CmdRecordStart),
		commandCmd("stop", "Stop collecting and process the recording", bus.CmdRecordStop),
		commandCmd("abort", "Abandon the current recording", bus.CmdRecordAbort),
		commandCmd("reset", "Clear the last result", bus.CmdRecordReset),
	)
	return cmd
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Control a training session",
	}
	cmd.AddCommand(
		commandCmd("start", "Start a guided training session", bus.CmdTrainStart),
		commandCmd("abort", "Abandon the training session", bus.CmdTrainAbort),
		commandCmd("reset", "Return to the initial phase", bus.CmdTrainReset),
	)
	return cmd
}

func statusCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show device, recording and training state",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := bus.Call(bus.CmdStatus)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if raw {
				fmt.Println(body)
				return nil
			}
			var st daemon.Status
			if err := json.Unmarshal([]byte(body), &st); err != nil {
				return fmt.Errorf("failed to decode status: %w", err)
			}
			tui.SetupColor()
			fmt.Println(tui.RenderStatus(st))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "json", false, "Print the raw JSON status")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.Call(bus.CmdVersion)
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration editor for neurotype.
Sections cover the headset connection, training and classifier
settings, LLM refinement, keywords, integrations and notifications.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tui.SetupColor()
	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration editor error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println(tui.StyleSuccess.Render("Configuration saved successfully!"))
	fmt.Println()

	showNextSteps()
	return nil
}

func showNextSteps() {
	serviceRunning := false
	if _, err := exec.Command("systemctl", "--user", "is-active", "--quiet", "neurotype.service").CombinedOutput(); err == nil {
		serviceRunning = true
	}

	fmt.Println(tui.StyleHeader.Render("Next steps"))
	if serviceRunning {
		fmt.Println("  The running daemon picks up the new configuration automatically.")
	} else {
		fmt.Println("  1. Start the daemon:  neurotype serve")
	}
	fmt.Println("  2. Connect:           neurotype connect")
	fmt.Println("  3. Train letters:     neurotype train start")
	fmt.Println("  4. Record:            neurotype record start")
}

func modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect or remove trained models",
	}
	cmd.AddCommand(modelListCmd(), modelRemoveCmd())
	return cmd
}

func modelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelList(cmd.Context())
		},
	}
}

func modelRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "remove <letters|start-symbol|all>",
		Short:     "Delete a trained model",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"letters", "start-symbol", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelRemove(cmd.Context(), args[0])
		},
	}
}

func runModelList(ctx context.Context) error {
	st, err := openModelStore()
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := classifier.ListModels(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if len(list) == 0 {
		fmt.Println(tui.StyleMuted.Render("No trained models. Run `neurotype train start`."))
		return nil
	}
	for _, m := range list {
		fmt.Printf("  %s %s\n", tui.StyleLabel.Render(fmt.Sprintf("%-14s", m.Name)), m.Detail)
	}
	return nil
}

func runModelRemove(ctx context.Context, name string) error {
	st, err := openModelStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := classifier.RemoveModel(ctx, st, name); err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	fmt.Println(tui.StyleSuccess.Render("Removed " + name))
	return nil
}

// openModelStore opens the persistent model store. The daemon holds the
// store's lock while it runs, so it must be stopped first.
func openModelStore() (store.Store, error) {
	if err := bus.CheckExistingDaemon(); err != nil {
		return nil, fmt.Errorf("stop the daemon first: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Store.Backend == "memory" {
		return nil, fmt.Errorf("store backend is memory; no models are persisted")
	}
	dir, err := cfg.StoreDir()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.Backend, dir)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools used for notifications and text output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tui.SetupColor()
			fmt.Println(tui.StyleHeader.Render("Desktop tools"))
			printCheck("notify-send", checkTool("notify-send"))

			backends := output.Backends()
			names := make([]string, 0, len(backends))
			for name := range backends {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				printCheck(name, backends[name].Available())
			}
			return nil
		},
	}
}

func checkTool(name string) error {
	_, err := exec.LookPath(name)
	return err
}

func printCheck(name string, err error) {
	label := tui.StyleLabel.Render(fmt.Sprintf("%-12s", name))
	if err != nil {
		fmt.Printf("  %s %s %s\n", label, tui.StyleError.Render("✗"), tui.StyleMuted.Render(err.Error()))
		return
	}
	fmt.Printf("  %s %s\n", label, tui.StyleSuccess.Render("✓"))
}
