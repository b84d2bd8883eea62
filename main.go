package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"fbposts/internal/graph"
	"fbposts/internal/logging"
	"fbposts/internal/notify"
)

type Config struct {
	GraphAccessToken string `env:"GRAPH_ACCESS_TOKEN,required"`

	GraphPageID string `env:"GRAPH_PAGE_ID,required"`

	GraphAPIURL string `env:"GRAPH_API_URL" envDefault:"https://graph.facebook.com"`

	GraphAPIVersion string `env:"GRAPH_API_VERSION" envDefault:"v12.0"`

	GraphTimeout time.Duration `env:"GRAPH_TIMEOUT" envDefault:"30s"`

	// GraphNotifyOnRead also emails successful reads, only failures are
	// reported for reads otherwise
	GraphNotifyOnRead bool `env:"GRAPH_NOTIFY_ON_READ" envDefault:"false"`

	SMTPHost string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`

	SMTPPort int `env:"SMTP_PORT" envDefault:"587"`

	SMTPUsername string `env:"SMTP_USERNAME,required"`

	SMTPPassword string `env:"SMTP_PASSWORD,required"`

	SMTPFrom string `env:"SMTP_FROM"`

	SMTPTimeout time.Duration `env:"SMTP_TIMEOUT" envDefault:"15s"`

	NotifySuccessRecipients []string `env:"NOTIFY_SUCCESS_RECIPIENTS,required" envSeparator:","`

	NotifyFailureRecipients []string `env:"NOTIFY_FAILURE_RECIPIENTS,required" envSeparator:","`

	LogEnabled bool `env:"LOG_ENABLED" envDefault:"true"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	LogDevelopment bool `env:"LOG_DEVELOPMENT" envDefault:"true"`

	PostCaption string `env:"POST_CAPTION" envDefault:"KALKI Movie Poster"`

	PostImageURL string `env:"POST_IMAGE_URL"`

	PostUpdatedCaption string `env:"POST_UPDATED_CAPTION" envDefault:"Hello, updated world!"`
}

func main() {
	cfg, err := getConfig()
	if err != nil {
		log.Fatalf("unable to get config: %s", err)
	}

	logger, err := logging.New(logging.Config{
		Enabled:     cfg.LogEnabled,
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
	})
	if err != nil {
		log.Fatalf("unable to initialize logger: %s", err)
	}

	client, err := getClient(logger, cfg)
	if err != nil {
		log.Fatalf("unable to initialize graph client: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	// handle interrupts
	g.Go(func() error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)

		select {
		case <-gctx.Done():
		case s := <-c:
			logger.Info("received signal, cancelling", zap.String("signal", s.String()))
			cancel()
		}

		return nil
	})

	g.Go(func() error {
		defer cancel()
		return run(gctx, logger, client, cfg.demo())
	})

	err = g.Wait()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// poster is the part of the graph client the demo sequence drives.
type poster interface {
	CreatePost(ctx context.Context, caption, imageURL string) (graph.Response, error)
	ReadPost(ctx context.Context, postID string) (graph.Response, error)
	UpdatePost(ctx context.Context, postID, caption string) (graph.Response, error)
	DeletePost(ctx context.Context, postID string) (graph.Response, error)
}

type demo struct {
	Caption        string
	ImageURL       string
	UpdatedCaption string
}

// run creates a post, reads it back, updates and finally deletes it. It stops
// at the first step that fails, nothing already done is rolled back.
func run(ctx context.Context, logger *zap.Logger, p poster, d demo) error {
	logger.Debug("run started")

	created, err := p.CreatePost(ctx, d.Caption, d.ImageURL)
	if err != nil {
		const msg = "failed to create post"
		logger.Error(msg, zap.Error(err), zap.Stringer("kind", graph.KindOf(err)))
		return fmt.Errorf(msg+": %w", err)
	}

	postID := created.PostID()
	if postID == "" {
		const msg = "create response carries no post id"
		logger.Error(msg, zap.Any("response", created))
		return errors.New(msg)
	}
	logger = logger.With(zap.String("postId", postID))

	if _, err := p.ReadPost(ctx, postID); err != nil {
		const msg = "failed to read post"
		logger.Error(msg, zap.Error(err), zap.Stringer("kind", graph.KindOf(err)))
		return fmt.Errorf(msg+": %w", err)
	}

	if _, err := p.UpdatePost(ctx, postID, d.UpdatedCaption); err != nil {
		const msg = "failed to update post"
		logger.Error(msg, zap.Error(err), zap.Stringer("kind", graph.KindOf(err)))
		return fmt.Errorf(msg+": %w", err)
	}

	if _, err := p.DeletePost(ctx, postID); err != nil {
		const msg = "failed to delete post"
		logger.Error(msg, zap.Error(err), zap.Stringer("kind", graph.KindOf(err)))
		return fmt.Errorf(msg+": %w", err)
	}

	logger.Debug("run completed")

	return nil
}

func getConfig(opts ...env.Options) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, opts...); err != nil {
		return nil, err
	}

	cfg.NotifySuccessRecipients = cleanList(cfg.NotifySuccessRecipients)
	cfg.NotifyFailureRecipients = cleanList(cfg.NotifyFailureRecipients)

	return &cfg, nil
}

func getClient(logger *zap.Logger, cfg *Config) (*graph.Client, error) {
	notifier, err := notify.NewService(logger, notify.Config{
		Host:              cfg.SMTPHost,
		Port:              cfg.SMTPPort,
		Username:          cfg.SMTPUsername,
		Password:          cfg.SMTPPassword,
		From:              cfg.SMTPFrom,
		Timeout:           cfg.SMTPTimeout,
		SuccessRecipients: cfg.NotifySuccessRecipients,
		FailureRecipients: cfg.NotifyFailureRecipients,
	})
	if err != nil {
		return nil, err
	}

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GraphAccessToken})

	return graph.NewClient(
		logger,
		notifier,
		tokens,
		cfg.GraphPageID,
		graph.WithBaseURL(cfg.GraphAPIURL),
		graph.WithAPIVersion(cfg.GraphAPIVersion),
		graph.WithTimeout(cfg.GraphTimeout),
		graph.WithNotifyOnRead(cfg.GraphNotifyOnRead),
	)
}

func (c *Config) demo() demo {
	return demo{
		Caption:        c.PostCaption,
		ImageURL:       c.PostImageURL,
		UpdatedCaption: c.PostUpdatedCaption,
	}
}

func cleanList(in []string) []string {
	var out []string
	for i := range in {
		if s := strings.TrimSpace(in[i]); s != "" {
			out = append(out, s)
		}
	}

	return out
}
