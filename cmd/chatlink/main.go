// Command chatlink is an interactive terminal client for a conversational AI
// gateway. It keeps a resilient websocket to the gateway, streams replies as
// they arrive, and maintains a local chat history synced with the server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/verdantlabs/chatlink/internal/config"
	"github.com/verdantlabs/chatlink/internal/conn"
	"github.com/verdantlabs/chatlink/internal/history"
	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/monitoring"
	"github.com/verdantlabs/chatlink/internal/server"
	"github.com/verdantlabs/chatlink/internal/session"
)

func main() {
	gatewayURL := flag.String("gateway", "", "Gateway websocket URL (overrides GATEWAY_URL)")
	model := flag.String("model", "", "Model identifier (overrides GATEWAY_MODEL)")
	debug := flag.Bool("debug", false, "Enable the local debug/metrics server")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *gatewayURL != "" {
		cfg.Gateway.URL = *gatewayURL
	}
	if *model != "" {
		cfg.Gateway.Model = *model
	}
	if *debug {
		cfg.Debug.Enabled = true
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()

	store, err := history.NewStore(cfg.History.StorePath, logger)
	if err != nil {
		logger.Error("failed to open history store", zap.Error(err))
		os.Exit(1)
	}
	var remote history.Fetcher
	if cfg.History.APIURL != "" {
		remote = history.NewClient(cfg.History.APIURL, cfg.History.Timeout(), logger, metrics)
	}
	hist := history.NewService(store, remote, logger, metrics)

	cm := conn.NewManager(conn.Config{
		URL:               cfg.Gateway.URL,
		ConnectTimeout:    cfg.Gateway.ConnectTimeout(),
		MaxAttempts:       cfg.Gateway.MaxAttempts,
		Backoff:           cfg.Gateway.Backoff(),
		HeartbeatInterval: cfg.Gateway.Heartbeat(),
	}, nil, logger, metrics)

	orch := session.New(cm, hist, cfg.Gateway.Model, logger, metrics)
	orch.OnReply(func(m session.Message) {
		fmt.Printf("\nassistant> %s\n> ", m.Content)
	})
	cm.OnLifecycle(func(ev conn.Event) {
		switch ev.State {
		case conn.StateConnected:
			fmt.Print("\n[connected]\n> ")
		case conn.StateErrored:
			fmt.Print("\n[connection failed; /retry to reconnect]\n> ")
		}
	})

	var debugSrv *server.Server
	if cfg.Debug.Enabled {
		debugSrv = server.New(server.Config{
			Addr:        cfg.Debug.Addr,
			Development: cfg.Logging.Development,
		}, orch, logger, metrics)
		go func() {
			if err := debugSrv.Run(); err != nil {
				logger.Error("debug server failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.History.Timeout())
	hist.Refresh(ctx)
	cancel()

	if err := orch.Connect(); err != nil {
		logger.Warn("initial connect refused", zap.Error(err))
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		fmt.Println("\nshutting down")
		shutdown(orch, debugSrv, logger)
		os.Exit(0)
	}()

	fmt.Printf("chatlink connected to %s (model %s)\n", cfg.Gateway.URL, cfg.Gateway.Model)
	fmt.Println("commands: /new /list /open <id> /delete <id> /retry /status /quit")

	repl(orch, logger)
	shutdown(orch, debugSrv, logger)
}

// repl reads user input until EOF or /quit.
func repl(orch *session.Orchestrator, logger *logging.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !command(orch, line) {
				return
			}
			fmt.Print("> ")
			continue
		}

		if err := orch.SendUserMessage(line); err != nil {
			fmt.Printf("send failed: %v\n", err)
		}
		fmt.Print("> ")
	}
	if err := scanner.Err(); err != nil {
		logger.Error("stdin read failed", zap.Error(err))
	}
}

// command dispatches a slash command; returns false on /quit.
func command(orch *session.Orchestrator, line string) bool {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return false

	case "/new":
		orch.StartNewConversation()
		fmt.Println("started a new conversation")

	case "/list":
		list := orch.History().List()
		if len(list) == 0 {
			fmt.Println("no saved conversations")
			break
		}
		for _, s := range list {
			fmt.Printf("  %s  %s — %s\n", s.ID, s.Title, s.Preview)
		}

	case "/open":
		if arg == "" {
			fmt.Println("usage: /open <id>")
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		orch.SelectConversation(ctx, arg)
		cancel()
		for _, m := range orch.Messages() {
			fmt.Printf("%s> %s\n", m.Role, m.Content)
		}

	case "/delete":
		if arg == "" {
			fmt.Println("usage: /delete <id>")
			break
		}
		orch.DeleteConversation(arg)
		fmt.Println("deleted", arg)

	case "/retry":
		if err := orch.Retry(); err != nil {
			fmt.Printf("retry failed: %v\n", err)
		}

	case "/status":
		st := orch.Snapshot()
		fmt.Printf("connection: %s (attempts %d)\n", st.Conn.State, st.Conn.Attempts)
		if st.Conn.LastError != "" {
			fmt.Printf("last error: %s\n", st.Conn.LastError)
		}
		fmt.Printf("session: %s (%d messages, loading=%v)\n", st.SessionID, st.Messages, st.Loading)

	default:
		fmt.Println("unknown command:", fields[0])
	}
	return true
}

func shutdown(orch *session.Orchestrator, debugSrv *server.Server, logger *logging.Logger) {
	orch.Close()
	if debugSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := debugSrv.Shutdown(ctx); err != nil {
			logger.Warn("debug server shutdown failed", zap.Error(err))
		}
		cancel()
	}
}
