package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/okian/petal/internal/client"
	"github.com/okian/petal/internal/config"
	"github.com/okian/petal/pkg/logger"
)

// Exit codes.
const (
	exitFailure  = 1
	exitRejected = 2
)

var Error = log.New(os.Stderr, "petalctl: error: ", 0)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).Run(ctx, os.Args); err != nil {
		exitWithError(err)
	}
}

// newApp builds the command tree. Results go to out, logs to logs.
func newApp(out, logs io.Writer) *cli.Command {
	app := new(cli.Command)

	app.Name = "petalctl"
	app.Usage = "train, run and query the iris random forest"
	app.HideHelpCommand = true
	app.Writer = out
	app.ErrWriter = logs

	app.Before = func(ctx context.Context, c *cli.Command) (context.Context, error) {
		if err := logger.Init(logger.WithWriter(logs), logger.WithFormat(c.String("log-format"))); err != nil {
			return nil, err
		}
		if err := logger.SetLevelString(c.String("log-level")); err != nil {
			return nil, err
		}
		return ctx, nil
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "path to the model `file`",
			Sources: cli.EnvVars(config.EnvPrefix + "MODEL_PATH"),
			Value:   config.New().ModelPath,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Sources: cli.EnvVars(config.EnvPrefix + "LOG_LEVEL"),
			Value:   "warn",
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "text or json",
			Sources: cli.EnvVars(config.EnvPrefix + "LOG_FORMAT"),
			Value:   "text",
		},
	}

	app.Commands = []*cli.Command{
		trainCommand(out),
		predictCommand(out),
		reproduceCommand(out),
		sampleCommand(out),
		remoteCommand(out),
		{
			Name:     "version",
			Usage:    "print the version information",
			Category: "Other",
			Action: func(_ context.Context, _ *cli.Command) error {
				_, err := io.WriteString(out, "petalctl ("+runtime.Version()+")\n")
				return err
			},
		},
	}

	return app
}

func exitWithError(err error) {
	exitcode := exitFailure
	if errors.Is(err, errRejected) || errors.Is(err, client.ErrInvalid) {
		exitcode = exitRejected
	}

	Error.Println(err)

	os.Exit(exitcode)
}
