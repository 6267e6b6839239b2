// Command pilotforce-transfer uploads survey files into a booking and
// retrieves stored resources, chunked resources included, from the
// command line.
//
// Usage:
//
//	pilotforce-transfer upload -booking <id> <file>...
//	pilotforce-transfer download -booking <id> -resource <id> [-out <dir>]
//	pilotforce-transfer list -booking <id>
//
// Connection settings come from the environment: PILOTFORCE_API_URL,
// PILOTFORCE_API_TOKEN and the tuning variables documented in the config
// package.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/pilotforce/transfer/pkg/transfer"
	"github.com/pilotforce/transfer/pkg/transfer/config"
)

type EnvConfig struct {
	Verbose bool `env:"PILOTFORCE_VERBOSE" env-default:"false"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var envCfg EnvConfig
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to read environment:", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if envCfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(
		config.WithEnv("PILOTFORCE"),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "upload":
		err = runUpload(ctx, cfg, os.Args[2:])
	case "download":
		err = runDownload(ctx, cfg, os.Args[2:])
	case "list":
		err = runList(ctx, cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  pilotforce-transfer upload -booking <id> <file>...
  pilotforce-transfer download -booking <id> -resource <id> [-out <dir>]
  pilotforce-transfer list -booking <id>`)
}

func runUpload(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bookingID := fs.String("booking", "", "booking id to attach files to")
	fs.Parse(args)

	if *bookingID == "" {
		return fmt.Errorf("-booking is required")
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no files given")
	}

	files := make([]transfer.FileInput, 0, fs.NArg())
	for _, path := range fs.Args() {
		f, err := transfer.FileFromPath(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	up, err := cfg.BuildUploader(
		transfer.WithProgress(func(task transfer.UploadTask) {
			if task.Status.Terminal() || task.Status == transfer.TaskRetrying {
				slog.Info("task update",
					"file", task.File.Name,
					"status", string(task.Status),
					"progress", task.Progress,
					"retries", task.Retries,
				)
			}
		}),
	)
	if err != nil {
		return err
	}

	result, err := up.Upload(ctx, *bookingID, files)
	if err != nil {
		return err
	}

	fmt.Printf("uploaded %d file(s), %d failed\n", len(result.Succeeded), len(result.Failed))
	if result.StatusUpdated {
		fmt.Println("booking marked completed")
	}
	return result.FailedError()
}

func runDownload(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	bookingID := fs.String("booking", "", "booking id")
	resourceID := fs.String("resource", "", "resource id to download")
	outDir := fs.String("out", cfg.DownloadDir, "output directory")
	fs.Parse(args)

	if *bookingID == "" || *resourceID == "" {
		return fmt.Errorf("-booking and -resource are required")
	}

	down, err := cfg.BuildDownloader()
	if err != nil {
		return err
	}

	res, err := down.Download(ctx, *bookingID, *resourceID, func(pct int) {
		slog.Debug("download progress", "pct", pct)
	})
	if err != nil {
		return err
	}

	if err := transfer.SaveFile(*outDir, res.FileName, res.Data); err != nil {
		return err
	}
	fmt.Printf("saved %s (%d bytes)\n", res.FileName, len(res.Data))
	return nil
}

func runList(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	bookingID := fs.String("booking", "", "booking id")
	fs.Parse(args)

	if *bookingID == "" {
		return fmt.Errorf("-booking is required")
	}

	resources, err := cfg.BuildBackend().ListResources(ctx, *bookingID)
	if err != nil {
		return err
	}

	for _, r := range resources {
		kind := "single"
		if r.IsChunked {
			kind = fmt.Sprintf("chunked(%d)", r.TotalChunks)
		}
		fmt.Printf("%s  %-10s %-8s %8d  %s\n", r.ResourceID, kind, r.Status, r.Size, r.FileName)
	}
	return nil
}
