package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/client"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/file"
)

type takeOptions struct {
	server    string
	statePath string
	rollNo    string
	password  string
	testID    string
	fallback  bool
	tick      time.Duration
}

// NewTakeCmd runs one timed attempt in the terminal against a quiz server.
func NewTakeCmd() *cobra.Command {
	opts := takeOptions{tick: time.Second}
	server := os.Getenv("QUIZ_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	statePath := ".quiz/attempt.json"
	if dir, err := os.UserConfigDir(); err == nil {
		statePath = filepath.Join(dir, "quiz-service", "attempt.json")
	}

	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a timed quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			log.SetOutput(io.Discard)
			if v, _ := cmd.Flags().GetBool("verbose"); v {
				log.SetOutput(cmd.ErrOrStderr())
			}
			return runTake(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", server, "quiz server base URL")
	cmd.Flags().StringVar(&opts.statePath, "state", statePath, "where the in-progress attempt is saved")
	cmd.Flags().StringVar(&opts.rollNo, "rollno", "", "roll number (prompted when empty)")
	cmd.Flags().StringVar(&opts.password, "password", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&opts.testID, "test", "", "test id; empty takes every question")
	cmd.Flags().BoolVar(&opts.fallback, "fallback", true, "use the built-in questions when the server has none")
	cmd.Flags().Bool("verbose", false, "log to stderr")
	return cmd
}

// taker owns the attempt. Input lines and timer ticks are handled by the same
// goroutine, so the attempt is never touched concurrently.
type taker struct {
	engine *app.QuizEngine
	out    io.Writer
	lines  <-chan string
	tick   time.Duration
}

func runTake(ctx context.Context, opts takeOptions, in io.Reader, out io.Writer, log logrus.FieldLogger) error {
	c := client.New(opts.server)
	engineOpts := []app.EngineOption{app.WithLogger(log)}
	if opts.fallback {
		engineOpts = append(engineOpts, app.WithFallbackQuestions(app.DefaultQuestions()))
	}
	engine := app.NewQuizEngine(c, c, file.NewAttemptStore(opts.statePath), c, engineOpts...)

	t := &taker{engine: engine, out: out, lines: readLines(in), tick: opts.tick}
	if t.tick <= 0 {
		t.tick = time.Second
	}

	attempt, outcome, err := engine.Resume(ctx)
	if outcome != nil {
		fmt.Fprintln(out, "Time ran out while you were away; your attempt was submitted.")
		t.report(*outcome, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resume attempt: %w", err)
	}
	if attempt != nil {
		fmt.Fprintf(out, "Resuming attempt for %s.\n", attempt.StudentName)
	} else {
		profile, err := t.login(ctx, c, opts)
		if err != nil {
			return err
		}
		attempt, err = engine.Start(ctx, profile, opts.testID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Welcome %s. %d questions, %s on the clock.\n",
			profile.Name, len(attempt.Questions), clock(engine.Remaining(attempt)))
	}
	return t.run(ctx, attempt)
}

func (t *taker) login(ctx context.Context, c *client.Client, opts takeOptions) (domain.StudentProfile, error) {
	rollNo, password := opts.rollNo, opts.password
	var err error
	if rollNo == "" {
		if rollNo, err = t.prompt(ctx, "Roll number: "); err != nil {
			return domain.StudentProfile{}, err
		}
	}
	if password == "" {
		if password, err = t.prompt(ctx, "Password: "); err != nil {
			return domain.StudentProfile{}, err
		}
	}
	profile, err := c.Login(ctx, rollNo, password)
	if err != nil {
		return domain.StudentProfile{}, fmt.Errorf("login: %w", err)
	}
	return profile, nil
}

func (t *taker) prompt(ctx context.Context, label string) (string, error) {
	fmt.Fprint(t.out, label)
	select {
	case line, ok := <-t.lines:
		if !ok {
			return "", io.ErrUnexpectedEOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *taker) run(ctx context.Context, attempt *domain.Attempt) error {
	timer := t.engine.Timer(attempt)
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	t.render(attempt)
	lastShown := timer.Remaining()
	for {
		select {
		case <-ctx.Done():
			// The checkpoint stays on disk so the next run resumes.
			return ctx.Err()

		case <-ticker.C:
			remaining, expired := timer.Poll()
			if expired {
				fmt.Fprintln(t.out, "\nTime is up.")
				t.report(t.engine.Expire(ctx, attempt))
				return nil
			}
			if remaining != lastShown && (remaining <= 10 || remaining%60 == 0) {
				fmt.Fprintf(t.out, "[%s left]\n", clock(remaining))
			}
			lastShown = remaining

		case line, ok := <-t.lines:
			if _, expired := timer.Poll(); expired {
				fmt.Fprintln(t.out, "\nTime is up.")
				t.report(t.engine.Expire(ctx, attempt))
				return nil
			}
			if !ok {
				return nil
			}
			done, err := t.handle(ctx, attempt, strings.TrimSpace(line))
			if err != nil || done {
				return err
			}
		}
	}
}

// handle applies one command. It reports whether the attempt is over.
func (t *taker) handle(ctx context.Context, attempt *domain.Attempt, cmd string) (bool, error) {
	switch strings.ToLower(cmd) {
	case "":
		t.render(attempt)
	case "n":
		if !t.engine.Advance(ctx, attempt) {
			fmt.Fprintln(t.out, "Already at the last question.")
		}
		t.render(attempt)
	case "p":
		if !t.engine.Retreat(ctx, attempt) {
			fmt.Fprintln(t.out, "Already at the first question.")
		}
		t.render(attempt)
	case "t":
		fmt.Fprintf(t.out, "%s left\n", clock(t.engine.Remaining(attempt)))
	case "s":
		if unanswered := len(attempt.Questions) - attempt.Answered(); unanswered > 0 {
			fmt.Fprintf(t.out, "Submitting with %d unanswered.\n", unanswered)
		}
		t.report(t.engine.Finalize(ctx, attempt))
		return true, nil
	case "q":
		if err := t.engine.Exit(ctx, attempt); err != nil {
			return true, err
		}
		fmt.Fprintln(t.out, "Attempt abandoned.")
		return true, nil
	default:
		label := strings.ToUpper(cmd)
		err := t.engine.SelectOption(ctx, attempt, attempt.Current, label)
		switch {
		case errors.Is(err, domain.ErrInvalidOption):
			fmt.Fprintf(t.out, "No option %q. Commands: option letter, n, p, t, s, q.\n", cmd)
		case err != nil:
			return false, err
		default:
			t.render(attempt)
		}
	}
	return false, nil
}

func (t *taker) render(attempt *domain.Attempt) {
	q, ok := attempt.CurrentQuestion()
	if !ok {
		return
	}
	fmt.Fprintf(t.out, "\nQuestion %d/%d  [%s left]\n%s\n",
		attempt.Current+1, len(attempt.Questions), clock(t.engine.Remaining(attempt)), q.Text)
	selected := attempt.Responses[attempt.Current]
	for _, opt := range q.Options {
		marker := " "
		if opt.Label == selected {
			marker = "*"
		}
		fmt.Fprintf(t.out, " %s %s) %s\n", marker, opt.Label, opt.Text)
	}
	fmt.Fprint(t.out, "> ")
}

func (t *taker) report(outcome app.Outcome, err error) {
	r := outcome.Result
	fmt.Fprintf(t.out, "Score: %d/%d (%d%%)\n", r.Score, r.Total, r.Percentage)
	if err != nil || !outcome.Saved {
		fmt.Fprintln(t.out, "Warning: your result could not be saved on the server.")
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
