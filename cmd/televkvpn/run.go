package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/didierodjou/televkvpn/internal/app"
	"github.com/didierodjou/televkvpn/internal/authprompt"
	"github.com/didierodjou/televkvpn/internal/config"
)

// runRole loads configuration, wires an Application for role, brings the
// tunnel up, and blocks until it is told to stop — the shared body behind
// both `server` and `client`.
func runRole(role app.Role) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(cfg, role)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	application.SetCallbacks(app.Callbacks{
		OnTrafficStarted: func() {
			fmt.Println("traffic started: first packet observed")
		},
		OnAuthPrompt: stdinAuthPrompt,
	})

	ctx := context.Background()
	if err := application.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if err := application.StartReadingPackets(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	fmt.Printf("televkvpn %s running (transport=%s). Press Ctrl+C to stop.\n", role, cfg.TransportType)
	application.Run()
	return nil
}

// stdinAuthPrompt answers an interactive carrier auth prompt (phone, SMS
// code, 2FA password, CAPTCHA) by reading one line from the controlling
// terminal. A blank line cancels the prompt.
func stdinAuthPrompt(req *authprompt.Request) {
	fmt.Printf("[%s] %s: ", req.Kind, req.Prompt)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		req.Cancel()
		return
	}

	line = strings.TrimSpace(line)
	if line == "" {
		req.Cancel()
		return
	}
	req.Resolve(authprompt.Reply{Text: line})
}
