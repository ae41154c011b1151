/*
Copyright © 2025 matthewtan01
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/logger"
	"github.com/matthewtan01/pdf-rag/types"
	"github.com/matthewtan01/pdf-rag/utils"
)

var (
	userStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2b313e")).
			Padding(0, 1).
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#2b313e"))
	botStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#475063")).
			Padding(0, 1).
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#475063"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	statusStyle = lipgloss.NewStyle().Faint(true)
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with local PDF files in the terminal",
	Long: `Processes the given PDF files (and every PDF in --directory), then reads
questions from standard input and prints the whole conversation after each answer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, _ := cmd.Flags().GetStringArray("file")
		directory, _ := cmd.Flags().GetString("directory")
		session, _ := cmd.Flags().GetString("session")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if session == "" {
			session = cfg.DefaultSessionID
		}
		log, err := logger.NewConsole(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		uploads, err := utils.ReadLocalFiles(append(files, args...), directory)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		app, err := newApplication(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(context.Background()); err != nil {
				log.Warn("failed to release resources", zap.Error(err))
			}
		}()

		out := cmd.OutOrStdout()
		result, err := processWithStatus(ctx, out, func(ctx context.Context, status chan<- types.ProcessingDocumentStatus) (*types.ProcessResult, error) {
			return app.fileService.Process(ctx, uploads, status)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Processed %d file(s) into %d chunks. Ask a question (Ctrl-D to quit).\n",
			len(result.Files), result.Chunks)

		return runChatLoop(ctx, app, session, cmd.InOrStdin(), out)
	},
}

type processFunc func(ctx context.Context, status chan<- types.ProcessingDocumentStatus) (*types.ProcessResult, error)

// processWithStatus prints every status update of process to out and returns
// only after the last one has been written.
func processWithStatus(ctx context.Context, out io.Writer, process processFunc) (*types.ProcessResult, error) {
	status := make(chan types.ProcessingDocumentStatus)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for st := range status {
			fmt.Fprintln(out, statusStyle.Render(st.Message))
		}
	}()
	result, err := process(ctx, status)
	close(status)
	<-printed
	return result, err
}

func runChatLoop(ctx context.Context, app *application, session string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, labelStyle.Render("Ask a question about your documents: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if _, err := app.handle.Ask(ctx, session, question); err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			continue
		}
		renderHistory(out, app.history.GetOrCreate(session).Messages())
	}
}

// renderHistory prints every message of the session in chronological order.
func renderHistory(out io.Writer, messages []types.Message) {
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleHuman:
			fmt.Fprintln(out, userStyle.Render(msg.Content))
		case types.RoleAssistant:
			fmt.Fprintln(out, botStyle.Render(msg.Content))
		}
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringArrayP("file", "f", []string{}, "Path to a PDF file to process (repeatable)")
	chatCmd.Flags().StringP("directory", "d", "", "Directory whose PDF files are processed")
	chatCmd.Flags().StringP("session", "s", "", "Session key (defaults to default_session_id)")
}
