package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"docqa/config"
	"docqa/core"
	"docqa/core/security"
	"docqa/core/utils"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question-answering session in the terminal",
	Long: `Start one chat session against the stored reference document.

Commands inside the session:
  /status   show model, document and credential status
  /reset    end the session and start a new one
  /quit     exit`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, logCloser, err := bootstrap("text")
		if err != nil {
			return err
		}
		defer logCloser.Close()
		defer a.Close()

		// 终端会话中日志写到 stderr，对话写到 stdout
		a.log.SetOutput(cmd.ErrOrStderr())
		return runChat(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// runChat 读取一行问题，输出一条回复；失败时输出状态提示而不是退出
func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s := a.sessions.Create()
	defer func() { a.sessions.End(s.ID) }()

	fmt.Fprintln(out, "Ask anything about the reference document. /quit to exit.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/status":
			st := a.assistant.Status(ctx, s, a.sessions.Credentials(), a.backend.Name())
			model := st.Model
			if model == "" {
				model = "(not resolved yet)"
			}
			fmt.Fprintf(out, "model: %s | document ready: %v | credentials: %d (%d available)\n", model, st.DocumentReady, st.Credentials, st.Available)
			continue
		case "/reset":
			a.sessions.End(s.ID)
			s = a.sessions.Create()
			fmt.Fprintln(out, "Session reset.")
			continue
		}

		turn := a.assistant.Ask(ctx, s, line)
		if turn.Failed {
			fmt.Fprintf(out, "! %s\n", turn.Text)
			continue
		}
		fmt.Fprintf(out, "[%s] %s\n", turn.Model, turn.Text)
	}
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the catalog ranking used for model resolution",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, logCloser, err := bootstrap("text")
		if err != nil {
			return err
		}
		defer logCloser.Close()
		defer a.Close()

		return printRanking(cmd.Context(), a, cmd.OutOrStdout())
	},
}

func printRanking(ctx context.Context, a *app, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := a.resolver.Rank(ctx, a.sessions.Credentials()[0])
	if err != nil {
		res = a.resolver.Fallback()
		fmt.Fprintf(out, "catalog unavailable (%v), static fallback:\n", err)
	} else if !res.Matched {
		fmt.Fprintln(out, "no preferred model in catalog, default:")
	}
	for i, m := range res.Candidates {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %2d. %s\n", marker, i+1, utils.ShortModelName(m))
	}
	return nil
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Replace the reference document (PDF or plain text)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		a, logCloser, err := bootstrap("text")
		if err != nil {
			return err
		}
		defer logCloser.Close()
		defer a.Close()

		doc, err := a.store.WriteDocument(cmd.Context(), filepath.Base(args[0]), data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s, %d bytes, sha256 %s)\n", doc.Filename, doc.MimeType, doc.Size, doc.SHA256[:12])
		return nil
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt <credential>",
	Short: "Encrypt a credential with DOCQA_SECRET_KEY for use in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.SecretKey == "" {
			return fmt.Errorf("DOCQA_SECRET_KEY is not set")
		}
		sp, err := security.NewAESSecretProvider(cfg.SecretKey)
		if err != nil {
			return err
		}
		ct, err := sp.Encrypt(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), core.EncryptedPrefix+ct)
		return nil
	},
}
