// Command checkin is a terminal client for the weekly check-in service:
// sign in once, then answer this week's questionnaire one question at a time.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calmbridge/checkin/internal/apiclient"
	"github.com/calmbridge/checkin/internal/credstore"
	"github.com/calmbridge/checkin/internal/models"
	"github.com/calmbridge/checkin/internal/services"
	"github.com/calmbridge/checkin/internal/utils"
)

func main() {
	baseURL := utils.SafeEnv("CHECKIN_BASE_URL", "https://api.checkin.example.com")
	locale := utils.SafeEnv("CHECKIN_LOCALE", "en")
	stateDir := utils.SafeEnv("CHECKIN_STATE_DIR", defaultStateDir())

	creds, err := credstore.Open(stateDir)
	if err != nil {
		log.Fatalf("open credential store: %v", err)
	}
	defer func() { _ = creds.Close() }()

	client := apiclient.New(baseURL, nil, creds)
	session := services.NewSessionService(client, creds)
	questionnaires := services.NewQuestionnaireService(client, locale)

	app := &cli{
		in:             bufio.NewReader(os.Stdin),
		session:        session,
		questionnaires: questionnaires,
		creds:          creds,
	}

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx := context.Background()
	switch cmd {
	case "signup":
		err = app.signUp(ctx)
	case "signin":
		err = app.signIn(ctx)
	case "signout":
		err = app.signOut(ctx)
	case "whoami":
		err = app.whoami()
	case "run":
		err = app.run(ctx)
	default:
		fmt.Fprintf(os.Stderr, "usage: checkin [signup|signin|signout|whoami|run]\n")
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "checkin")
	}
	return ".checkin"
}

type cli struct {
	in             *bufio.Reader
	session        *services.SessionService
	questionnaires *services.QuestionnaireService
	creds          *credstore.Store
}

func (c *cli) prompt(label string) string {
	fmt.Print(label)
	line, _ := c.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *cli) signUp(ctx context.Context) error {
	name := c.prompt("Name: ")
	email := c.prompt("Email: ")
	password := c.prompt("Password: ")
	res, err := c.session.SignUp(ctx, name, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Welcome, %s. You are signed in.\n", res.User.Email)
	return nil
}

func (c *cli) signIn(ctx context.Context) error {
	email := c.prompt("Email: ")
	password := c.prompt("Password: ")
	res, err := c.session.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s.\n", res.User.Email)
	return nil
}

func (c *cli) signOut(ctx context.Context) error {
	if err := c.session.SignOut(ctx); err != nil {
		// Local logout already happened; the server call is best effort.
		log.Printf("server sign-out: %v", err)
	}
	fmt.Println("Signed out.")
	return nil
}

func (c *cli) whoami() error {
	tok, ok := c.creds.Get()
	if !ok {
		fmt.Println("Not signed in.")
		return nil
	}
	info, err := utils.PeekToken(tok)
	if err != nil {
		fmt.Println("Signed in (opaque token).")
		return nil
	}
	fmt.Printf("Signed in as %s", info.Subject)
	if !info.ExpiresAt.IsZero() {
		fmt.Printf(" (session expires %s)", info.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
	return nil
}

// run drives one questionnaire traversal, re-authenticating and retrying on
// explicit user action only.
func (c *cli) run(ctx context.Context) error {
	if !c.session.IsAuthenticated() {
		fmt.Println("Please sign in first.")
		if err := c.signIn(ctx); err != nil {
			return err
		}
	}

	flow := services.NewFlow(c.questionnaires, c.creds)
	for {
		if err := flow.Start(ctx); err != nil {
			snap := flow.Snapshot()
			fmt.Println(snap.ErrMessage)
			if snap.AuthExpired {
				if err := c.signIn(ctx); err != nil {
					return err
				}
				continue
			}
			if !strings.EqualFold(c.prompt("Try again? [y/N] "), "y") {
				return nil
			}
			continue
		}
		break
	}

	snap := flow.Snapshot()
	if snap.State == services.FlowEmpty {
		fmt.Println("Nothing to answer this week. See you next time!")
		return nil
	}

	q := flow.Questionnaire()
	fmt.Printf("\n%s", q.Title)
	if q.Week > 0 {
		fmt.Printf(" (week %d)", q.Week)
	}
	fmt.Println()
	if q.Description != "" {
		fmt.Println(q.Description)
	}

	for {
		snap = flow.Snapshot()
		switch snap.State {
		case services.FlowReady, services.FlowError:
			if snap.State == services.FlowError {
				fmt.Println(snap.ErrMessage)
				if snap.AuthExpired {
					if err := c.signIn(ctx); err != nil {
						return err
					}
				} else if !strings.EqualFold(c.prompt("Try again? [y/N] "), "y") {
					return nil
				}
			}
			answer := c.askQuestion(snap)
			if err := flow.SubmitAnswer(ctx, answer); err != nil {
				continue // surfaced via the next snapshot
			}
		case services.FlowCompleted:
			fmt.Println("\nAll done — thank you! Your answers have been saved.")
			if strings.EqualFold(c.prompt("Retake the questionnaire? [y/N] "), "y") {
				flow.Retake()
				continue
			}
			return nil
		default:
			return fmt.Errorf("unexpected flow state %s", snap.State)
		}
	}
}

func (c *cli) askQuestion(snap services.Snapshot) string {
	q := snap.Current
	fmt.Printf("\n[%d/%d] %s\n", snap.Index+1, snap.Total, q.Text)
	switch q.Kind {
	case models.InputKindChoice:
		labels := q.Labels()
		if len(labels) == 0 {
			// Zero-option choice questions degrade to free text.
			return c.prompt("> ")
		}
		for i, label := range labels {
			fmt.Printf("  %d) %s\n", i+1, label)
		}
		for {
			in := c.prompt("Choose an option: ")
			if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(labels) {
				return labels[n-1]
			}
			for _, label := range labels {
				if strings.EqualFold(in, label) {
					return label
				}
			}
			fmt.Println("Please pick one of the listed options.")
		}
	case models.InputKindScale:
		lo, hi := q.Min, q.Max
		if hi == 0 {
			lo, hi = 1, 10
		}
		for {
			in := c.prompt(fmt.Sprintf("Enter %d (low) to %d (high): ", lo, hi))
			if n, err := strconv.Atoi(in); err == nil && n >= lo && n <= hi {
				return strconv.Itoa(n)
			}
		}
	default:
		placeholder := q.Placeholder
		if placeholder == "" {
			placeholder = "Enter your answer..."
		}
		for {
			if in := c.prompt(placeholder + " "); strings.TrimSpace(in) != "" {
				return in
			}
		}
	}
}
