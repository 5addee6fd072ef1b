package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/SAP-F-2025/quiz-service/internal/config"
	"github.com/SAP-F-2025/quiz-service/internal/embed"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

const stdinPath = "-"

// Run is the quiz-validate command. Every file shares one validator, so ids
// must be unique across all of them. Diagnostics go to stderr.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	settings := config.LoadValidationConfig()

	flags := flag.NewFlagSet("quiz-validate", flag.ContinueOnError)
	flags.SetOutput(stderr)
	lightweight := flags.Bool("lightweight", settings.Lightweight, "skip compiling and running Tracing programs")
	timeout := flags.Duration("timeout", settings.RunTimeout, "time limit for building and running one program")
	compiler := flags.String("compiler", settings.Compiler, "compiler for Tracing programs")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  quiz-validate [options] [file ...|-]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	paths := flags.Args()
	if len(paths) == 0 {
		paths = []string{stdinPath}
	}
	if *timeout <= 0 {
		fmt.Fprintf(stderr, "invalid -timeout: %s\n", *timeout)
		return ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger(stderr)
	v, err := validator.NewQuizValidator(validator.Options{
		Lightweight: *lightweight,
		Toolchain:   validator.NewRustToolchain(*compiler, *timeout, logger),
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "quiz-validate: %v\n", err)
		return ExitError
	}

	code := ExitOK
	for _, path := range paths {
		contents, name, err := readInput(path, stdin)
		if err != nil {
			fmt.Fprintf(stderr, "quiz-validate: %v\n", err)
			code = ExitError
			continue
		}

		report, err := v.Validate(ctx, name, contents)
		if err != nil {
			fmt.Fprintf(stderr, "quiz-validate: %s: %v\n", name, err)
			code = ExitError
			continue
		}
		if report.Skipped {
			continue
		}

		report.Render(stderr)
		errs, warnings := len(report.Errors()), len(report.Warnings())
		if errs > 0 {
			fmt.Fprintf(stderr, "%s: %d error(s), %d warning(s)\n", name, errs, warnings)
			code = ExitError
			continue
		}
		if warnings > 0 {
			fmt.Fprintf(stdout, "%s: OK with %d warning(s)\n", name, warnings)
		} else {
			fmt.Fprintf(stdout, "%s: OK\n", name)
		}
	}
	return code
}

func readInput(path string, stdin io.Reader) (contents, name string, err error) {
	if path == stdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), "<stdin>", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read quiz file: %w", err)
	}
	return string(data), path, nil
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// RunEmbed is the quiz-embed command. It expands the quiz directives of one
// chapter and prints the result to stdout.
func RunEmbed(args []string, stdout, stderr io.Writer) int {
	settings := config.LoadValidationConfig()

	flags := flag.NewFlagSet("quiz-embed", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var opts embed.Config
	flags.BoolVar(&opts.Fullscreen, "fullscreen", false, "take over the page while a quiz is in progress")
	flags.BoolVar(&opts.CacheAnswers, "cache-answers", false, "keep learner answers between visits")
	flags.BoolVar(&opts.ShowBugReporter, "show-bug-reporter", false, "let learners report broken questions")
	flags.StringVar(&opts.InitialText, "initial-text", "", "text shown before a quiz starts")
	flags.StringVar(&opts.DefaultLanguage, "default-language", "", "default language for code blocks")
	lightweight := flags.Bool("lightweight", settings.Lightweight, "skip compiling and running Tracing programs")
	timeout := flags.Duration("timeout", settings.RunTimeout, "time limit for building and running one program")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  quiz-embed [options] chapter.md")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return ExitUsage
	}
	_, opts.DevMode = os.LookupEnv("QUIZ_DEV_MODE")

	chapter := flags.Arg(0)
	content, err := os.ReadFile(chapter)
	if err != nil {
		fmt.Fprintf(stderr, "quiz-embed: failed to read chapter: %v\n", err)
		return ExitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger(stderr)
	v, err := validator.NewQuizValidator(validator.Options{
		Lightweight: *lightweight,
		Toolchain:   validator.NewRustToolchain(settings.Compiler, *timeout, logger),
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "quiz-embed: %v\n", err)
		return ExitError
	}

	out, err := embed.NewPreprocessor(opts, v, logger).Process(ctx, filepath.Dir(chapter), string(content))
	if err != nil {
		fmt.Fprintf(stderr, "quiz-embed: %v\n", err)
		return ExitError
	}
	io.WriteString(stdout, out)
	return ExitOK
}
