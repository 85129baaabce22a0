// Package main provides the archon CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"archon/cmd/archon/chat"
	"archon/internal/config"
	"archon/internal/conversation"
	"archon/internal/escalation"
	"archon/internal/logging"
	"archon/internal/provider"
	"archon/internal/reasoner"
	"archon/internal/reviewer"
	"archon/internal/session"
	"archon/internal/speech"
	"archon/internal/store"
)

// Version is stamped by the release build.
var Version = "0.3.0-dev"

var (
	verbose   bool
	sessionID string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "archon",
	Short: "archon - escalating two-stage chat assistant",
	Long: `archon is an interactive assistant that answers through a two-phase
reasoning protocol (analysis, then solution) and escalates hard or
repeatedly failing requests to an architect reviewer model.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The TUI has its own surface; zap is for the plain subcommands.
		if cmd.Use == "archon" && cmd.CalledAs() == "archon" {
			return nil
		}
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider credentials",
}

var keysSetCmd = &cobra.Command{
	Use:   "set [provider] [key]",
	Short: "Store a provider credential (reasoner, reviewer, speech)",
	Args:  cobra.ExactArgs(2),
	RunE:  runKeysSet,
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured credentials (masked)",
	RunE:  runKeysShow,
}

var keysCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configured credential formats",
	RunE:  runKeysCheck,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  runSessions,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the archon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("archon %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id to resume (default: most recent)")

	keysCmd.AddCommand(keysSetCmd, keysShowCmd, keysCheckCmd)
	rootCmd.AddCommand(askCmd, keysCmd, sessionsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// core bundles everything the surfaces need.
type core struct {
	userCfg *config.UserConfig
	sysCfg  *config.Config
	store   *store.LocalStore
	sess    *session.Session
	watcher *config.Watcher
}

func (c *core) close() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.sess != nil {
		_ = c.sess.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
	logging.CloseAll()
}

// buildCore wires the full session: config, logging, store, providers,
// policy, speech, and the session itself.
func buildCore(id string) (*core, error) {
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		root, _ = os.Getwd()
	}
	if err := logging.Initialize(root); err != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging unavailable: %v\n", err)
	}

	sysCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return nil, err
	}
	userCfg, err := config.LoadUserConfig(config.DefaultUserConfigPath())
	if err != nil {
		userCfg = config.DefaultUserConfig()
	}

	st, err := store.NewLocalStore(filepath.Join(root, ".archon", "archon.db"), userCfg.GetHistoryLimit())
	if err != nil {
		return nil, err
	}

	validator := config.NewValidator(nil)
	policy := escalation.NewPolicy(escalation.Config{
		MaxRetries:       sysCfg.Escalation.MaxRetries,
		FailureThreshold: sysCfg.Escalation.FailureThreshold,
		BackoffBase:      sysCfg.Timeouts.RetryBackoffBase,
		BackoffJitter:    sysCfg.Timeouts.RetryBackoffJitter,
		BackoffMax:       sysCfg.Timeouts.RetryBackoffMax,
		ExtraPatterns:    sysCfg.Escalation.ExtraPatterns,
	})

	log := conversation.NewLogWithBanner(session.DefaultBanner)

	reasonerEp := sysCfg.Reasoner
	if userCfg.ReasonerModel != "" {
		reasonerEp.Model = userCfg.ReasonerModel
	}
	reviewerEp := sysCfg.Reviewer
	if userCfg.ReviewerModel != "" {
		reviewerEp.Model = userCfg.ReviewerModel
	}
	speechCfg := sysCfg.Speech
	if userCfg.SpeechVoice != "" {
		speechCfg.Voice = userCfg.SpeechVoice
	}

	solver := reasoner.NewSolver(
		provider.NewChatClient(reasonerEp, sysCfg.Timeouts),
		policy, log, validator, sysCfg.Timeouts,
	)
	architect := reviewer.NewClient(
		provider.NewGeminiClient(reviewerEp, sysCfg.Timeouts),
		validator, sysCfg.Timeouts,
	)
	speaker := speech.NewManager(
		provider.NewSpeechClient(speechCfg, sysCfg.Timeouts),
		speech.NewExecPlayer(""),
		sysCfg.Timeouts,
	)

	sess, err := session.New(userCfg, session.Deps{
		SessionID: id,
		Solver:    solver,
		Reviewer:  architect,
		Speech:    speaker,
		Store:     st,
		Policy:    policy,
		Validator: validator,
		Log:       log,
	})
	if err != nil {
		_ = speaker.Close()
		_ = st.Close()
		return nil, err
	}

	watcher, err := config.NewWatcher(root, func(path string) {
		sess.ReloadCredentials()
		_ = logging.ReloadConfig()
	})
	if err == nil {
		_ = watcher.Start(context.Background())
	} else {
		logging.Boot("config watcher unavailable: %v", err)
	}

	return &core{
		userCfg: userCfg,
		sysCfg:  sysCfg,
		store:   st,
		sess:    sess,
		watcher: watcher,
	}, nil
}

// runChat launches the interactive TUI.
func runChat() error {
	c, err := buildCore(sessionID)
	if err != nil {
		return err
	}
	defer c.close()

	p := tea.NewProgram(chat.New(c.sess, c.userCfg), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// runAsk answers one question without the TUI.
func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	for _, a := range args[1:] {
		question += " " + a
	}
	logger.Info("one-shot ask", zap.Int("question_chars", len(question)))

	c, err := buildCore(sessionID)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	turn, err := c.sess.Send(ctx, question, nil)
	if err != nil {
		return err
	}
	if turn.Notice != "" {
		fmt.Fprintln(os.Stderr, turn.Notice)
	}
	fmt.Println(turn.Answer)
	return nil
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	p := config.Provider(args[0])
	key := args[1]

	validator := config.NewValidator(nil)
	if err := validator.Validate(p, key); err != nil {
		return err
	}

	userCfg, err := config.LoadUserConfig(config.DefaultUserConfigPath())
	if err != nil {
		userCfg = config.DefaultUserConfig()
	}
	userCfg.SetCredential(p, key)
	if err := userCfg.Save(config.DefaultUserConfigPath()); err != nil {
		return err
	}

	root, err := config.FindWorkspaceRoot()
	if err != nil {
		root, _ = os.Getwd()
	}
	st, err := store.NewLocalStore(filepath.Join(root, ".archon", "archon.db"), userCfg.GetHistoryLimit())
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.SaveCredentials(map[config.Provider]string{p: key}); err != nil {
		return err
	}

	logger.Info("credential stored", zap.String("provider", string(p)))
	fmt.Printf("Stored %s credential.\n", p)
	return nil
}

func runKeysShow(cmd *cobra.Command, args []string) error {
	userCfg, err := config.LoadUserConfig(config.DefaultUserConfigPath())
	if err != nil {
		userCfg = config.DefaultUserConfig()
	}
	for _, p := range []config.Provider{config.ProviderReasoner, config.ProviderReviewer, config.ProviderSpeech} {
		fmt.Printf("%-10s %s\n", p, maskKey(userCfg.Credential(p)))
	}
	return nil
}

func runKeysCheck(cmd *cobra.Command, args []string) error {
	userCfg, err := config.LoadUserConfig(config.DefaultUserConfigPath())
	if err != nil {
		userCfg = config.DefaultUserConfig()
	}
	validator := config.NewValidator(nil)

	failed := false
	for _, p := range []config.Provider{config.ProviderReasoner, config.ProviderReviewer, config.ProviderSpeech} {
		key := userCfg.Credential(p)
		if key == "" {
			fmt.Printf("%-10s not set\n", p)
			continue
		}
		if err := validator.Validate(p, key); err != nil {
			fmt.Printf("%-10s INVALID: %v\n", p, err)
			failed = true
			continue
		}
		fmt.Printf("%-10s ok\n", p)
	}
	if failed {
		return fmt.Errorf("one or more credentials have an invalid format")
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		root, _ = os.Getwd()
	}
	st, err := store.NewLocalStore(filepath.Join(root, ".archon", "archon.db"), store.DefaultHistoryLimit)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.Sessions()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}
	fmt.Printf("%-38s %-20s %s\n", "SESSION", "STARTED", "MESSAGES")
	for _, info := range infos {
		fmt.Printf("%-38s %-20s %d\n", info.ID, info.StartedAt.Format("2006-01-02 15:04:05"), info.MessageCount)
	}
	return nil
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
