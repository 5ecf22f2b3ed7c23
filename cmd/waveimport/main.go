package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Psantium/walkaround/internal/attachment"
	"github.com/Psantium/walkaround/internal/config"
	"github.com/Psantium/walkaround/internal/db"
	"github.com/Psantium/walkaround/internal/fetch"
	"github.com/Psantium/walkaround/internal/filestore"
	"github.com/Psantium/walkaround/internal/importer"
	"github.com/Psantium/walkaround/internal/job"
	"github.com/Psantium/walkaround/internal/model"
	"github.com/Psantium/walkaround/internal/repo"
	"github.com/Psantium/walkaround/internal/schedule"
	"github.com/Psantium/walkaround/internal/slob"
	"github.com/Psantium/walkaround/internal/worker"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "waveimport",
		Short: "wavelet import worker",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the import worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configPath)
			if err != nil {
				return err
			}
			conn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runWorker(cfg, conn)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	enqueueCmd := newEnqueueCmd(&configPath)
	enqueueCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(runCmd, enqueueCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return cfg, nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return conn, nil
}

func runWorker(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting import worker",
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("instances", len(cfg.Instances)),
	)

	logRepo := repo.NewMutationLogRepo()
	metaRepo := repo.NewMetadataRepo()
	perUserRepo := repo.NewPerUserRepo()
	sharedRepo := repo.NewSharedImportRepo()
	taskRepo := repo.NewTaskRepo()

	facilities := slob.NewFacilities(logRepo)
	creator := slob.NewCreator(conn, logRepo, metaRepo, facilities)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	instanceFactory := fetch.NewInstanceFactory(cfg.Instances)
	robotFactory := fetch.NewHTTPFactory()

	processor := importer.NewProcessor(conn, perUserRepo, sharedRepo, metaRepo,
		facilities, creator, robotFactory, instanceFactory)
	fetcher := attachment.NewFetcher(store, robotFactory, instanceFactory)

	w := worker.New(conn, taskRepo, processor, fetcher,
		time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Worker.LeaseSeconds)*time.Second,
		cfg.Worker.BatchSize)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewPostCommitJob(conn, logRepo, facilities), cfg.Worker.PostCommitSpec); err != nil {
		return fmt.Errorf("schedule post-commit job: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	go w.Run(ctx)

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("worker stopping...")
	scheduler.Stop()
	return nil
}

func newEnqueueCmd(configPath *string) *cobra.Command {
	var (
		userID      string
		userAddress string
		instance    string
		waveID      string
		waveletID   string
		sharingMode string
		ignoreSlob  string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "enqueue one wavelet import task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			conn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			mode := model.SharingMode(sharingMode)
			if !mode.Valid() {
				return fmt.Errorf("sharing mode must be %q or %q",
					model.SharingModePrivate, model.SharingModeShared)
			}
			task := &model.ImportTask{
				UserID:                 userID,
				UserAddress:            userAddress,
				Instance:               instance,
				WaveID:                 waveID,
				WaveletID:              waveletID,
				SharingMode:            mode,
				ExistingSlobIDToIgnore: ignoreSlob,
			}
			id, err := worker.Submit(cmd.Context(), conn, repo.NewTaskRepo(),
				model.TaskPayload{ImportWavelet: task})
			if err != nil {
				return err
			}
			logutil.GetLogger(cmd.Context()).Info("task enqueued", zap.String("task_id", id))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "importing user id")
	cmd.Flags().StringVar(&userAddress, "user-address", "", "importing user wave address")
	cmd.Flags().StringVar(&instance, "instance", "", "source instance id from config")
	cmd.Flags().StringVar(&waveID, "wave-id", "", "remote wave id")
	cmd.Flags().StringVar(&waveletID, "wavelet-id", "", "remote wavelet id")
	cmd.Flags().StringVar(&sharingMode, "sharing-mode", string(model.SharingModePrivate), "private or shared")
	cmd.Flags().StringVar(&ignoreSlob, "ignore-slob", "", "existing local copy to supersede with a fresh import")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("user-address")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("wave-id")
	_ = cmd.MarkFlagRequired("wavelet-id")
	return cmd
}
