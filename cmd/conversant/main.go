// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command conversant runs a terminal REPL against the Conversation Engine:
// a single-session host wiring the tool registry, an LLM client, the
// approval gate, and the optional editor bridge, tokenizer, and checkpoint
// store together.
//
// Usage:
//
//	go run ./cmd/conversant
//	go run ./cmd/conversant -provider ollama -model llama3
//	go run ./cmd/conversant -bridge -checkpoint-dir ./checkpoints
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nanoforge/conversant/approval"
	"github.com/nanoforge/conversant/bridge"
	"github.com/nanoforge/conversant/checkpoint"
	"github.com/nanoforge/conversant/compact"
	"github.com/nanoforge/conversant/engine"
	"github.com/nanoforge/conversant/events"
	"github.com/nanoforge/conversant/llm"
	"github.com/nanoforge/conversant/tools"
)

func main() {
	provider := flag.String("provider", "mock", "LLM provider: mock, ollama, openai")
	model := flag.String("model", "llama3", "model name, used by the ollama provider")
	ollamaURL := flag.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	projectRoot := flag.String("root", ".", "project root the demo file tools operate under")
	enableBridge := flag.Bool("bridge", false, "start the editor bridge websocket server")
	bridgePort := flag.Int("bridge-port", 8787, "editor bridge port")
	checkpointDir := flag.String("checkpoint-dir", "", "directory for the checkpoint store; empty uses an in-memory store")
	mode := flag.String("mode", "normal", "approval mode: normal, auto-accept, plan")
	nonInteractive := flag.Bool("non-interactive", false, "abort instead of prompting on any approval-required call")
	compactionMode := flag.String("compaction-mode", "off", "/compact default mode: off, conservative, default, aggressive")
	compactionKeepRecent := flag.Int("compaction-keep-recent", compact.DefaultKeepRecent, "user/assistant pairs /compact always preserves")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root, err := filepath.Abs(*projectRoot)
	if err != nil {
		log.Fatalf("resolve project root: %v", err)
	}

	client, err := buildClient(*provider, *model, *ollamaURL)
	if err != nil {
		log.Fatalf("build LLM client: %v", err)
	}

	registry := tools.NewRegistry()
	if err := registerDemoTools(registry, root); err != nil {
		log.Fatalf("register tools: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := engine.NewTurnMetrics(reg)

	tok, err := newTokenizerAdapter(client.Model())
	if err != nil {
		logger.Warn("tokenizer unavailable, context-pressure accounting disabled", "error", err)
		tok = nil
	}

	stdin := bufio.NewReader(os.Stdin)

	emitter := events.NewEmitter()
	collector := events.NewMetricsCollector()
	emitter.Subscribe(events.LoggingHandler(logger, slog.LevelDebug))
	emitter.Subscribe(collector.Handler())
	defer logger.Info("event metrics", "metrics", collector.GetMetrics())

	opts := []engine.EngineOption{
		withEngineCheckpoints(*checkpointDir, logger),
		engine.WithMetrics(metrics),
		engine.WithLogger(logger),
		engine.WithConfirmFunc(terminalConfirm(stdin, os.Stdout)),
		engine.WithEventSink(newEventsSink(emitter)),
		engine.WithPreflightGate(approval.NewDefaultGate(nil)),
	}
	if tok != nil {
		opts = append(opts, engine.WithTokenizer(tok))
	}

	var br *bridge.Bridge
	if *enableBridge {
		cfg := bridge.DefaultConfig()
		cfg.Port = *bridgePort
		br = bridge.NewBridge(cfg)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := br.Listen(ctx); err != nil {
			logger.Warn("editor bridge failed to start, continuing without it", "error", err)
			br = nil
		} else {
			defer br.Close()
			opts = append(opts, engine.WithBridge(newBridgeAdapter(br)))
			logger.Info("editor bridge listening", "port", br.Port())
		}
	}

	eng := engine.NewEngine(registry, client, opts...)
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("engine close", "error", err)
		}
	}()

	cfg := engine.DefaultConfig()
	switch *mode {
	case "normal":
		cfg.Mode = engine.ModeNormal
	case "auto-accept":
		cfg.Mode = engine.ModeAutoAccept
	case "plan":
		cfg.Mode = engine.ModePlan
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
	cfg.NonInteractive = *nonInteractive

	session, err := engine.NewSession(cfg, metrics)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	emitter.SetSessionID(session.ID())
	emitter.Emit(events.TypeSessionStart, &events.SessionStartData{ProjectRoot: root})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runREPL(ctx, eng, session, stdin, compact.Mode(*compactionMode), *compactionKeepRecent)
	emitter.Emit(events.TypeSessionEnd, &events.SessionEndData{Success: true})
}

// buildClient selects an llm.Client by provider name.
func buildClient(provider, model, ollamaURL string) (llm.Client, error) {
	switch provider {
	case "mock":
		return llm.NewMockClient(), nil
	case "ollama":
		return llm.NewOllamaClient(ollamaURL, model), nil
	case "openai":
		return llm.NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// withEngineCheckpoints opens a checkpoint store at dir (or in-memory if dir
// is empty) and returns the matching engine option. Failure to open the
// store is non-fatal: the conversation runs without checkpointing.
func withEngineCheckpoints(dir string, logger *slog.Logger) engine.EngineOption {
	cfg := checkpoint.InMemoryConfig()
	if dir != "" {
		cfg = checkpoint.DefaultConfig()
		cfg.Path = dir
	}
	store, err := checkpoint.OpenStore(cfg)
	if err != nil {
		logger.Warn("checkpoint store unavailable, continuing without it", "error", err)
		return func(*engine.Engine) {}
	}
	return engine.WithCheckpointStore(newCheckpointAdapter(store))
}

// terminalConfirm prompts the user on stdout/stdin for confirm-required tool
// calls. "y" approves once, "a" approves for the rest of the session,
// anything else (including a bare newline) rejects — a fail-safe default.
// reader is shared with the REPL loop so both read from the same buffered
// view of stdin instead of racing over two independent buffers.
func terminalConfirm(reader *bufio.Reader, out *os.File) approval.ConfirmFunc {
	return func(ctx context.Context, call tools.ToolCall, def tools.ToolDefinition) (approval.DecisionState, error) {
		preview := call.Raw
		if def.Formatter != nil {
			if args, err := call.ParamsMap(); err == nil {
				preview = def.Formatter(args)
			}
		}
		fmt.Fprintf(out, "approve %s (%s)? [y/N/a=always] ", call.Name, preview)

		line, err := reader.ReadString('\n')
		if err != nil {
			return approval.DecisionRejected, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return approval.DecisionApproved, nil
		case "a", "always":
			return approval.DecisionApprovedForSession, nil
		default:
			return approval.DecisionRejected, nil
		}
	}
}

// runREPL reads lines from stdin, feeding each as a turn's user input, until
// EOF or ctx is cancelled. A leading "/compact [mode]" line runs the
// History Compactor over the session's log instead of starting a turn;
// mode defaults to compactionMode.
func runREPL(ctx context.Context, eng *engine.Engine, session *engine.Session, reader *bufio.Reader, compactionMode compact.Mode, keepRecent int) {
	fmt.Println("conversant: type a message, or Ctrl+D to exit.")

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		input := strings.TrimSpace(line)

		switch {
		case input == "":
			// nothing to do

		case input == "/compact" || strings.HasPrefix(input, "/compact "):
			mode := compactionMode
			if fields := strings.Fields(input); len(fields) == 2 {
				mode = compact.Mode(fields[1])
			}
			stats := compactSession(session, mode, keepRecent)
			fmt.Printf("compacted: %d/%d messages touched (%d tool results, %d bodies, %d chars removed)\n",
				stats.ToolResultsSummarized+stats.BodiesTruncated, stats.MessagesAfter,
				stats.ToolResultsSummarized, stats.BodiesTruncated, stats.CharsRemoved)

		default:
			result, runErr := eng.Run(ctx, session, input)
			switch {
			case runErr != nil:
				fmt.Printf("error: %v\n", runErr)
			case result.Err != nil:
				fmt.Printf("turn ended (%s): %s\n", result.Err.Kind, result.Err.Error())
			case result.Content != "":
				fmt.Println(result.Content)
			}
		}

		if err != nil || ctx.Err() != nil {
			break
		}
	}
}
