package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appbootstrap "github.com/wolfman30/storefront-ai/internal/app/bootstrap"
	"github.com/wolfman30/storefront-ai/internal/catalog"
	appconfig "github.com/wolfman30/storefront-ai/internal/config"
	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/messaging"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const cliSessionID = "chatcli"

type chatOptions struct {
	envFile  string
	orgID    string
	agentID  string
	address  string
	catalog  string
	logLevel string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chatcli [message]",
		Short: "Talk to a storefront agent from the terminal",
		Long: `Runs the conversation pipeline against in-memory stores and prints the
agent's replies. With a message argument it answers once and exits;
without one it starts an interactive session (Ctrl-D to quit).

Examples:
  chatcli --catalog products.json "do you have blue mugs?"
  chatcli --org acme`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, args, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading configuration")
	flags.StringVar(&opts.orgID, "org", "demo-org", "tenant the conversation belongs to")
	flags.StringVar(&opts.agentID, "agent", "default", "agent answering the conversation")
	flags.StringVar(&opts.address, "from", "cli-user", "customer address used as contact identity")
	flags.StringVarP(&opts.catalog, "catalog", "c", "", "JSON file with the products to seed")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	return cmd
}

func runChat(ctx context.Context, opts *chatOptions, args []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", opts.envFile, err)
	}
	cfg := appconfig.Load()
	cfg.DatabaseURL = ""
	cfg.RedisAddr = ""
	cfg.GatewayBaseURL = ""
	cfg.UseMemoryQueue = true
	cfg.RunAuditTable = ""
	cfg.TranscriptBucket = ""
	logger := logging.NewWithOptions(logging.Options{Level: opts.logLevel, Format: "text", Service: "chatcli", Writer: os.Stderr})

	products, err := loadProducts(opts.catalog, opts.orgID)
	if err != nil {
		return err
	}
	printer := &printSender{out: out}
	rt, err := appbootstrap.BuildWithStores(ctx, cfg, appbootstrap.MemoryStores(products...), logger, appbootstrap.WithSender(printer))
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.Sessions.Create(ctx, messaging.Session{ID: cliSessionID, OrgID: opts.orgID, AgentID: opts.agentID}); err != nil {
		return err
	}

	send := func(text string) error {
		return rt.Orchestrator.HandleInbound(ctx, inboundMessage(opts, text))
	}
	if len(args) == 1 {
		return send(args[0])
	}
	return repl(ctx, send, out)
}

func repl(ctx context.Context, send func(string) error, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
		Stdout:          out,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return nil
}

func inboundMessage(opts *chatOptions, text string) events.MessageReceivedV1 {
	return events.MessageReceivedV1{
		MessageID:  uuid.NewString(),
		SessionID:  cliSessionID,
		OrgID:      opts.orgID,
		AgentID:    opts.agentID,
		From:       opts.address,
		Body:       text,
		Provider:   "cli",
		ReceivedAt: time.Now().UTC(),
	}
}

// loadProducts reads a JSON array of products and binds them to orgID.
func loadProducts(path, orgID string) ([]catalog.Product, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var products []catalog.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range products {
		if products[i].ID == "" {
			products[i].ID = uuid.NewString()
		}
		products[i].OrgID = orgID
		products[i].Active = true
	}
	return products, nil
}

// printSender writes replies to the terminal instead of a chat gateway.
type printSender struct {
	mu  sync.Mutex
	out io.Writer
}

var _ messaging.Sender = (*printSender)(nil)

func (p *printSender) SendText(_ context.Context, _, _, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out, "bot> %s\n", text)
	return err
}
