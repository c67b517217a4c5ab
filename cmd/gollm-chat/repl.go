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

	"github.com/gollm/gollm-chat/internal/chat"
)

func runChatCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gollm-chat", flag.ExitOnError)
	baseURL, provider, model, statePath, debug := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv(ctx, *baseURL, *provider, *model, *statePath, *debug)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.store.Len() == 0 {
		env.store.CreateSession()
	}

	sender := chat.NewSender(env.client, env.store, env.cfg.Provider, env.cfg.Model)

	fmt.Printf("gollm-chat — %s/%s via %s\n", env.cfg.Provider, env.cfg.Model, env.cfg.BaseURL)
	fmt.Println("Type a message, or /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		printPrompt(env)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, env, sender, line); quit {
				return nil
			}
			continue
		}
		sendAndStream(ctx, sender, line)
	}
}

func printPrompt(env *runtimeEnv) {
	if sess, ok := env.store.Active(); ok {
		fmt.Printf("[%s] > ", sess.Title)
		return
	}
	fmt.Print("> ")
}

// sendAndStream runs one send cycle, echoing deltas as they arrive.
// Ctrl-C stops the stream without leaving the REPL.
func sendAndStream(ctx context.Context, sender *chat.Sender, text string) {
	done, err := sender.Send(ctx, text, func(delta string) {
		fmt.Print(delta)
	})
	if err != nil {
		fmt.Printf("send failed: %v\n", err)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-done:
	case <-sigCh:
		sender.Stop()
		fmt.Print(" [stopped]")
		<-done
	}
	fmt.Println()
}

func handleCommand(ctx context.Context, env *runtimeEnv, sender *chat.Sender, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "/help":
		fmt.Println(`Commands:
  /new                 start a new session
  /sessions            list sessions
  /switch <id-prefix>  switch the active session
  /delete [id-prefix]  delete a session (default: active)
  /clear               clear the active session (keeps id and title)
  /search <query>      search session history
  /templates           list backend templates
  /stop                stop the current reply
  /quit                exit`)
	case "/new":
		id := env.store.CreateSession()
		fmt.Printf("started session %s\n", shortID(id))
	case "/sessions":
		activeID := env.store.ActiveID()
		for _, sess := range env.store.Sessions() {
			marker := " "
			if sess.ID == activeID {
				marker = "*"
			}
			fmt.Printf("%s %s  %-20s  %d messages\n", marker, shortID(sess.ID), sess.Title, len(sess.Messages))
		}
	case "/switch":
		if len(rest) != 1 {
			fmt.Println("usage: /switch <id-prefix>")
			break
		}
		if id, ok := resolveSession(env, rest[0]); ok {
			env.store.SetActive(id)
			fmt.Printf("switched to %s\n", shortID(id))
		} else {
			fmt.Println("no such session")
		}
	case "/delete":
		id := env.store.ActiveID()
		if len(rest) == 1 {
			var ok bool
			if id, ok = resolveSession(env, rest[0]); !ok {
				fmt.Println("no such session")
				break
			}
		}
		env.store.DeleteSession(id)
		fmt.Printf("deleted %s\n", shortID(id))
	case "/clear":
		if err := env.store.ClearActive(ctx); err != nil {
			fmt.Printf("clear failed: %v\n", err)
		} else {
			fmt.Println("session cleared")
		}
	case "/search":
		if len(rest) == 0 {
			fmt.Println("usage: /search <query>")
			break
		}
		results, err := env.store.Search(strings.Join(rest, " "), 10)
		if err != nil {
			fmt.Printf("search failed: %v\n", err)
			break
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			break
		}
		for _, r := range results {
			fmt.Printf("%s  %-20s  score %.2f\n", shortID(r.SessionID), r.Title, r.Score)
		}
	case "/templates":
		list, err := env.client.ListTemplates(ctx)
		if err != nil {
			fmt.Printf("list failed: %v\n", err)
			break
		}
		for _, t := range list {
			fmt.Printf("%-24s v%d\n", t.Name, t.Version)
		}
	case "/stop":
		sender.Stop()
	case "/quit", "/exit":
		return true
	default:
		fmt.Printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}

// resolveSession matches an id prefix against the collection.
func resolveSession(env *runtimeEnv, prefix string) (string, bool) {
	for _, sess := range env.store.Sessions() {
		if strings.HasPrefix(sess.ID, prefix) {
			return sess.ID, true
		}
	}
	return "", false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
