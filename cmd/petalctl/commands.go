package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/okian/petal/internal/adapters/repository"
	service "github.com/okian/petal/internal/app"
	"github.com/okian/petal/internal/client"
	"github.com/okian/petal/internal/domain/dataset"
	"github.com/okian/petal/internal/domain/forest"
	"github.com/okian/petal/internal/domain/predict"
	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
	"github.com/okian/petal/pkg/logger"
)

const (
	predictionsSuffix = "_predictions.csv"
	stdoutPath        = "-"
	defaultServerURL  = "http://localhost:9080"
)

var (
	errRejected = errors.New("upload rejected")
	errUsage    = errors.New("wrong number of arguments")
)

func trainCommand(out io.Writer) *cli.Command {
	defaults := forest.DefaultParams()
	return &cli.Command{
		Name:     "train",
		Usage:    "fit the random forest on the iris dataset and save it",
		HideHelp: true,
		Category: "Model",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "trees", Value: defaults.Trees, Usage: "number of `trees`"},
			&cli.IntFlag{Name: "leaf-size", Value: defaults.LeafSize, Usage: "node `size` below which trees stop splitting (0 is rows/20)"},
			&cli.IntFlag{Name: "max-features", Value: defaults.MaxFeatures, Usage: "`features` tried per split (0 is the square root)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ds, err := dataset.Load()
			if err != nil {
				return err
			}

			start := time.Now()
			f, err := forest.Fit(ctx, ds.X, ds.Y, ds.Features, ds.Classes,
				forest.WithTrees(c.Int("trees")),
				forest.WithLeafSize(c.Int("leaf-size")),
				forest.WithMaxFeatures(c.Int("max-features")),
			)
			if err != nil {
				return err
			}
			accuracy, err := f.Score(ctx, ds.X, ds.Y)
			if err != nil {
				return err
			}

			store := repository.NewFileStore(c.String("model"))
			if err := store.Save(ctx, f); err != nil {
				return err
			}

			logger.Get().Info(ctx, "model trained",
				logger.Int("trees", f.NumTrees()),
				logger.String("elapsed", time.Since(start).String()),
			)
			_, err = fmt.Fprintf(out, "saved %d trees to %s (training accuracy %.4f)\n",
				f.NumTrees(), store.Path(), accuracy)
			return err
		},
	}
}

func predictCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "predict",
		Usage:     "validate CSV files and write their predictions next to them",
		ArgsUsage: "FILE...",
		HideHelp:  true,
		Category:  "Model",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out-dir", Usage: "write prediction files into `dir` instead of next to the input"},
			&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Value: runtime.NumCPU(), Usage: "files processed in `parallel`"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("%w: at least one FILE is required", errUsage)
			}

			svc := service.New(
				service.WithLogger(logger.Named("service")),
				service.WithModelPath(c.String("model")),
			)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			written := make([]string, len(files))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(c.Int("jobs"), 1))
			for i, path := range files {
				g.Go(func() error {
					dst, rows, err := predictFile(gctx, svc, path, c.String("out-dir"))
					if err != nil {
						return err
					}
					written[i] = fmt.Sprintf("%s -> %s (%d rows)", path, dst, rows)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, line := range written {
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// predictFile analyses one file and writes <name>_predictions.csv.
func predictFile(ctx context.Context, svc *service.Service, path, outDir string) (string, int, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	res, err := svc.Analyze(ctx, filepath.Base(path), src)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", path, err)
	}
	if !res.Validation.Valid {
		return "", 0, fmt.Errorf("%s: %w: %s", path, errRejected, strings.Join(res.Validation.Errors, "; "))
	}

	dir := outDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dst := filepath.Join(dir, base+predictionsSuffix)

	if err := writeFile(dst, res.Predictions.WriteCSV); err != nil {
		return "", 0, err
	}
	return dst, res.Predictions.Len(), nil
}

func reproduceCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:     "reproduce",
		Usage:    "export the iris measurements and print their class probabilities",
		HideHelp: true,
		Category: "Model",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: types.SampleFileName, Usage: "measurements `file`"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ds, err := dataset.Load()
			if err != nil {
				return err
			}
			frame := ds.Frame()
			if err := writeFile(c.String("out"), frame.WriteCSV); err != nil {
				return err
			}

			f, err := repository.NewFileStore(c.String("model")).Load(ctx)
			if err != nil {
				return err
			}
			preds, err := predict.MakePredictions(ctx, f, frame)
			if err != nil {
				return err
			}
			return preds.WriteCSV(out)
		},
	}
}

func sampleCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:     "sample",
		Usage:    "write the upload template",
		HideHelp: true,
		Category: "Data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: stdoutPath, Usage: "template `file` (- for stdout)"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			data, err := service.New().SampleCSV()
			if err != nil {
				return err
			}
			if c.String("out") == stdoutPath {
				_, err = out.Write(data)
				return err
			}
			return writeFile(c.String("out"), func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		},
	}
}

func remoteCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "remote",
		Usage:     "upload a CSV file to a running server",
		ArgsUsage: "FILE",
		HideHelp:  true,
		Category:  "Data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: defaultServerURL, Sources: cli.EnvVars("PETAL_URL"), Usage: "server base `url`"},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "request `timeout`"},
			&cli.BoolFlag{Name: "csv", Usage: "print the prediction table as CSV"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("%w: expected exactly one FILE", errUsage)
			}
			path := c.Args().First()
			src, err := os.Open(path)
			if err != nil {
				return err
			}
			defer src.Close()

			cl := client.New(c.String("url"), client.WithTimeout(c.Duration("timeout")))
			if c.Bool("csv") {
				data, err := cl.PredictCSV(ctx, filepath.Base(path), src)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			res, err := cl.Predict(ctx, filepath.Base(path), src)
			if err != nil {
				return err
			}
			return printResult(out, res)
		},
	}
}

// printResult renders a remote prediction as a small aligned report.
func printResult(w io.Writer, res *client.Result) error {
	cached := ""
	if res.Cached {
		cached = " (cached)"
	}
	if _, err := fmt.Fprintf(w, "%s: %d rows%s\n", res.File, res.Rows, cached); err != nil {
		return err
	}

	classes := append([]string(nil), res.Classes...)
	sort.SliceStable(classes, func(i, j int) bool { return res.Counts[classes[i]] > res.Counts[classes[j]] })
	for _, class := range classes {
		if _, err := fmt.Fprintf(w, "  %-12s %d\n", class, res.Counts[class]); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%s,%s\n", strings.Join(res.Classes, ","), types.PredictedClassColumn); err != nil {
		return err
	}
	for _, row := range res.Predictions {
		cells := make([]string, 0, len(res.Classes)+1)
		for _, class := range res.Classes {
			cells = append(cells, table.FormatFloat(row.Probabilities[class]))
		}
		cells = append(cells, row.PredictedClass)
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return err
		}
	}
	return nil
}

// writeFile creates path and fills it with write.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
