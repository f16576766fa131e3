package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"notebridge/internal/agentapi"
	"notebridge/internal/config"
	"notebridge/internal/eventlog"
	"notebridge/internal/notebook"
	"notebridge/internal/protocol"
	"notebridge/internal/session"
	"notebridge/internal/transcript"
	"notebridge/internal/workspace"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Start an agent session for a question",
	Long: `Start an agent session. If --question is not specified, notebridge
prompts for one on standard input. Clarification questions the agent asks
are answered interactively.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringP("question", "q", "", "The question to hand to the agent")
	askCmd.Flags().String("why", "", "Why the question is being asked (forwarded as session context)")
	askCmd.Flags().String("what", "", "What the answer will be used for (forwarded as session context)")
}

var errQuestionRequired = errors.New("question is required")

func runAsk(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	outWriter := cmd.OutOrStdout()
	inReader := cmd.InOrStdin()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, cfgPath, err := loadOrCreateConfig(configPath, logger)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	workspaceRoot := determineWorkspaceRoot(cfg, cfgPath)
	if err := workspace.Initialize(workspaceRoot); err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	question, err := cmd.Flags().GetString("question")
	if err != nil {
		return err
	}
	if question == "" {
		question, err = promptForQuestion(inReader, outWriter, isTerminal(inReader))
		if err != nil {
			if errors.Is(err, errQuestionRequired) {
				return fmt.Errorf("question required: pass --question or provide text on standard input")
			}
			return err
		}
	}

	sessionCtx := map[string]any{}
	if why, _ := cmd.Flags().GetString("why"); why != "" {
		sessionCtx["why"] = why
	}
	if what, _ := cmd.Flags().GetString("what"); what != "" {
		sessionCtx["what"] = what
	}

	api := agentapi.NewClient(agentapi.Config{
		BaseURL:  cfg.Agent.Endpoint,
		Username: cfg.Agent.Username,
		Password: cfg.Agent.Password,
		Timeout:  cfg.Agent.Timeout(),
	}, logger)

	doc := notebook.NewMemoryDocument(logger)

	ctrl := session.NewController(api, doc, logger)
	ctrl.SetRunReadyDelay(cfg.Limits.RunReadyDelay())
	ctrl.SetFeedbackLimits(cfg.Limits.OutputMaxChars, cfg.Limits.ErrorMaxChars)
	ctrl.SetOutcomeDir(workspace.SessionsDir(workspaceRoot))

	sessionKey := fmt.Sprintf("ask-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
	elog, err := eventlog.NewEventLog(workspace.EventLogPath(workspaceRoot, sessionKey), logger)
	if err != nil {
		return fmt.Errorf("failed to create event log: %w", err)
	}
	defer elog.Close()
	ctrl.SetEventLog(elog)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := ctrl.Start(ctx, question, sessionCtx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer ctrl.Reset()

	g, gctx := errgroup.WithContext(ctx)

	dialogueDone := make(chan struct{})
	g.Go(func() error {
		defer close(dialogueDone)
		return runDialogue(gctx, ctrl, inReader, outWriter)
	})
	g.Go(func() error {
		return renderTranscript(gctx, ctrl.Transcript(), outWriter, dialogueDone)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	summarizeNotebook(outWriter, doc)
	fmt.Fprintf(outWriter, "Event log written to %s\n", workspace.EventLogPath(workspaceRoot, sessionKey))
	return nil
}

// renderTranscript tails the conversation log and prints new records until
// the dialogue finishes.
func renderTranscript(ctx context.Context, tlog *transcript.Log, w io.Writer, done <-chan struct{}) error {
	formatter := transcript.NewFormatter()
	pos := 0

	flush := func() {
		for _, rec := range tlog.Slice(pos) {
			fmt.Fprintln(w, formatter.FormatRecord(rec))
			pos++
		}
	}

	for {
		flush()
		select {
		case <-tlog.Notify():
		case <-done:
			flush()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runDialogue answers the agent's clarification prompts from standard input.
// It returns when the session is over and no prompt awaits an answer.
func runDialogue(ctx context.Context, ctrl *session.Controller, in io.Reader, w io.Writer) error {
	reader := bufio.NewReader(in)

	for {
		active := ctrl.ActiveClarification()
		if active == nil {
			select {
			case <-ctrl.Done():
				if ctrl.ActiveClarification() == nil {
					return nil
				}
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		fmt.Fprint(w, "> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		answer := resolveAnswer(active, strings.TrimSpace(line))
		if answer == "" {
			continue
		}
		if err := ctrl.SubmitAnswer(ctx, active.Term, answer); err != nil {
			if errors.Is(err, session.ErrNoSession) {
				fmt.Fprintln(w, "[notebridge] the agent has not acknowledged the session yet, hold on")
				continue
			}
			return err
		}
	}
}

// resolveAnswer maps the typed line to an answer value: a number picks the
// matching option, anything else is taken as free text.
func resolveAnswer(c *protocol.ClarificationRequest, line string) string {
	if line == "" {
		return ""
	}
	if len(c.Options) > 0 {
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(c.Options) {
			return c.Options[n-1].AnswerValue()
		}
	}
	return line
}

// summarizeNotebook prints what the session built
func summarizeNotebook(w io.Writer, doc *notebook.MemoryDocument) {
	blocks := doc.Blocks()
	if len(blocks) == 0 {
		return
	}

	fmt.Fprintf(w, "\nNotebook now holds %d block(s):\n", len(blocks))
	for i, blk := range blocks {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, blk.Kind, blockSummary(blk))
	}

	if queued := len(doc.ExecutionQueue()); queued > 0 {
		fmt.Fprintf(w, "%d block(s) queued for the execution engine.\n", queued)
	}
}

func blockSummary(blk notebook.Block) string {
	if blk.Kind == notebook.BlockKindVisualization && blk.Payload.Chart != nil {
		title := blk.Payload.Chart.Title
		if title == "" {
			title = blk.Payload.Chart.Type + " chart"
		}
		return title
	}

	src := strings.TrimSpace(blk.Payload.Source)
	if idx := strings.IndexByte(src, '\n'); idx >= 0 {
		src = src[:idx]
	}
	if len(src) > 60 {
		src = src[:60] + "..."
	}
	return src
}

func promptForQuestion(r io.Reader, w io.Writer, tty bool) (string, error) {
	reader := bufio.NewReader(r)
	if tty {
		fmt.Fprint(w, "notebridge> What do you want to know? ")
	}

	line, err := reader.ReadString('\n')
	if errors.Is(err, io.EOF) {
		line = strings.TrimSpace(line)
		if line == "" {
			return "", errQuestionRequired
		}
		if tty {
			fmt.Fprintln(w)
		}
		return line, nil
	}
	if err != nil {
		return "", err
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", errQuestionRequired
	}
	if tty {
		fmt.Fprintln(w)
	}
	return line, nil
}

func isTerminal(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// loadOrCreateConfig finds an existing config or creates a new one:
// walk up the directory tree, create in CWD if not found.
func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	// If explicit path provided, use it
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, nil
	}

	// Search up directory tree for notebridge.json
	foundPath, err := findConfigInTree()
	if err != nil {
		return nil, "", err
	}

	if foundPath != "" {
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	// No config found, create default in current directory
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	defaultPath := filepath.Join(cwd, "notebridge.json")
	logger.Info("no config found, creating default", "path", defaultPath)

	cfg := config.GenerateDefault()
	if err := cfg.SaveToFile(defaultPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}

	return cfg, defaultPath, nil
}

// findConfigInTree searches up the directory tree for notebridge.json
func findConfigInTree() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, "notebridge.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return "", nil
}

// determineWorkspaceRoot resolves the workspace root relative to the config file
func determineWorkspaceRoot(cfg *config.Config, configPath string) string {
	configDir := filepath.Dir(configPath)
	if cfg.WorkspaceRoot == "." {
		return configDir
	}
	return filepath.Join(configDir, cfg.WorkspaceRoot)
}
