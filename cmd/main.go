package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sparqchat/sparqui/internal/auth"
	"github.com/sparqchat/sparqui/internal/chat"
	"github.com/sparqchat/sparqui/internal/client"
	"github.com/sparqchat/sparqui/internal/config"
	"github.com/sparqchat/sparqui/internal/render"
	"github.com/sparqchat/sparqui/internal/store"
	"github.com/sparqchat/sparqui/internal/syncer"
	"github.com/sparqchat/sparqui/internal/transcript"
	"github.com/sparqchat/sparqui/storage"
)

type app struct {
	config   *config.Config
	local    *storage.Local
	client   *client.Client
	store    *store.Store
	syncer   *syncer.Syncer
	engine   *transcript.Engine
	auth     *auth.Handler
	renderer *render.Terminal
}

func main() {
	ctx := context.Background()
	godotenv.Load(".env")

	cfg := config.NewConfig()

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open local database: %s", err)
	}
	local, err := storage.NewLocal(db)
	if err != nil {
		log.Fatalf("Failed to init local storage: %s", err)
	}

	apiClient, err := client.NewClient(*cfg)
	if err != nil {
		log.Fatalf("Failed to create API client: %s", err)
	}

	theme, err := local.Theme()
	if err != nil || theme == "" {
		theme = "dark"
	}
	renderer := render.NewTerminal(os.Stdout, theme)

	st := store.NewStore(local)
	sy := syncer.New(st, local, apiClient)

	a := &app{
		config:   cfg,
		local:    local,
		client:   apiClient,
		store:    st,
		syncer:   sy,
		engine:   transcript.New(st, sy, apiClient, renderer),
		auth:     auth.NewHandler(apiClient, st, sy),
		renderer: renderer,
	}

	if err := a.auth.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to load sessions: %s", err)
	}

	a.printStatus()
	a.repl(ctx)
}

func (a *app) repl(ctx context.Context) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.runCommand(ctx, line); quit {
				return
			}
			continue
		}

		fmt.Print("Sparq: ")
		if _, err := a.engine.Send(ctx, line); err != nil {
			if errIsValidation(err) || err == transcript.ErrStreamInFlight {
				fmt.Printf("\nError: %s\n", err)
			}
		}
	}
}

func (a *app) runCommand(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/new":
		err = a.newChat(ctx)
	case "/list":
		a.listSessions()
	case "/open":
		err = a.openSession(args)
	case "/delete":
		err = a.deleteSession(ctx, args)
	case "/edit":
		err = a.editMessage(ctx, args)
	case "/regen":
		fmt.Print("Sparq: ")
		_, err = a.engine.Regenerate(ctx)
		if err != nil && errIsValidation(err) {
			fmt.Println()
		}
	case "/login":
		err = a.login(ctx, args)
	case "/register":
		err = a.register(ctx, args)
	case "/verify":
		err = a.verify(ctx, args)
	case "/resend":
		err = a.resend(ctx)
	case "/logout":
		err = a.auth.Logout(ctx)
		if err == nil {
			fmt.Println("Logged out, back to local sessions.")
			a.printStatus()
		}
	case "/delete-account":
		err = a.deleteAccount(ctx)
	case "/theme":
		err = a.setTheme(args)
	case "/help":
		printHelp()
	default:
		fmt.Printf("Unknown command %s, try /help\n", cmd)
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
	}
	return false
}

func (a *app) newChat(ctx context.Context) error {
	if _, err := a.store.Create(ctx); err != nil {
		return err
	}
	a.syncer.NotifyActiveHistory(nil)
	fmt.Println("Started a new chat.")
	return nil
}

func (a *app) listSessions() {
	activeID := a.store.ActiveID()
	for _, id := range a.store.IDs() {
		session, err := a.store.Get(id)
		if err != nil {
			continue
		}
		marker := " "
		if id == activeID {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, id, session.Title)
	}
}

func (a *app) openSession(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /open <session-id>")
	}
	switched, err := a.store.SetActive(args[0])
	if err != nil {
		return err
	}
	if !switched {
		return nil
	}

	session, err := a.store.Get(args[0])
	if err != nil {
		return err
	}
	printTranscript(session)
	a.syncer.NotifyActiveHistory(session.History)
	return nil
}

func (a *app) deleteSession(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /delete <session-id>")
	}
	return a.syncer.DropSession(ctx, args[0])
}

func (a *app) editMessage(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: /edit <exchange#> <new text>")
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid exchange number %q", args[0])
	}
	newText := strings.Join(args[1:], " ")

	fmt.Print("Sparq: ")
	if _, err := a.engine.Edit(ctx, idx, newText); err != nil {
		if errIsValidation(err) {
			fmt.Println()
		}
		return err
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: /login <username> <password>")
	}
	if err := a.auth.Login(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("Login successful.")
	a.printStatus()
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: /register <username> <email> <password>")
	}
	msg, err := a.auth.Register(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Println(msg)
	fmt.Println("Enter the emailed code with /verify <code>.")
	return nil
}

func (a *app) verify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /verify <code>")
	}
	if err := a.auth.VerifyOTP(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Verification successful.")
	a.printStatus()
	return nil
}

func (a *app) resend(ctx context.Context) error {
	msg, err := a.auth.ResendOTP(ctx)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func (a *app) deleteAccount(ctx context.Context) error {
	fmt.Print("Type DELETE to confirm account deletion: ")
	reader := bufio.NewReader(os.Stdin)
	confirm, _ := reader.ReadString('\n')
	if strings.TrimSpace(confirm) != "DELETE" {
		fmt.Println("Aborted.")
		return nil
	}
	if err := a.auth.DeleteAccount(ctx); err != nil {
		return err
	}
	fmt.Println("Account deleted.")
	a.printStatus()
	return nil
}

func (a *app) setTheme(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /theme dark|light")
	}
	if err := a.local.SetTheme(args[0]); err != nil {
		return err
	}
	fmt.Println("Theme saved, applies on next start.")
	return nil
}

func (a *app) printStatus() {
	remaining, limit := a.auth.Quota()
	if user := a.auth.User(); user != nil {
		verified := "not verified"
		if user.IsVerified {
			verified = "verified"
		}
		fmt.Printf("Signed in as %s (%s), %d/%d messages left today.\n", user.Username, verified, remaining, limit)
		return
	}
	if limit > 0 {
		fmt.Printf("Guest mode, %d/%d messages left today.\n", remaining, limit)
	} else {
		fmt.Println("Guest mode.")
	}
}

func printTranscript(session *chat.Session) {
	fmt.Printf("── %s ──\n", session.Title)
	for _, msg := range session.Messages {
		name := "Sparq"
		if msg.IsUser {
			name = "You"
		}
		fmt.Printf("%s: %s\n", name, msg.Text)
	}
}

func printHelp() {
	fmt.Println(`Commands:
  /new                       start a new chat
  /list                      list sessions, most recent first
  /open <id>                 switch to a session
  /delete <id>               delete a session
  /edit <exchange#> <text>   edit an earlier message and regenerate from it
  /regen                     regenerate the last response
  /login /register /verify /resend /logout /delete-account
  /theme dark|light          save theme preference
  /quit`)
}

func errIsValidation(err error) bool {
	return err == store.ErrNothingToRegenerate ||
		err == store.ErrLastMessageIsUser ||
		err == store.ErrIndexOutOfRange ||
		err == store.ErrNotUserMessage ||
		err == store.ErrEmptyMessage
}
