package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/recgo"
	"github.com/hupe1980/recgo/blobstore"
	"github.com/hupe1980/recgo/blobstore/minio"
	"github.com/hupe1980/recgo/blobstore/s3"
	"github.com/hupe1980/recgo/codec"
	"github.com/hupe1980/recgo/internal/config"
	"github.com/hupe1980/recgo/persistence"
	"github.com/hupe1980/recgo/resource"
)

func newLogger(c config.LoggingConfig) (*recgo.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	if c.Format == "text" {
		return recgo.NewTextLogger(level), nil
	}

	return recgo.NewJSONLogger(level), nil
}

func newStore(ctx context.Context, c config.StorageConfig) (blobstore.Store, error) {
	switch c.Backend {
	case config.BackendMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BackendS3:
		return s3.NewStoreFromConfig(ctx, c.Bucket, c.Prefix)
	case config.BackendMinio:
		client, err := miniogo.New(c.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
			Secure: c.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}

		return minio.NewStore(client, c.Bucket, c.Prefix), nil
	default:
		return blobstore.NewLocalStore(c.Root), nil
	}
}

// newCommitLog returns nil when commits go to the snapshot folder itself.
func newCommitLog(ctx context.Context, c config.StorageConfig) (blobstore.CommitLog, error) {
	if c.DynamoDBTable == "" {
		return nil, nil
	}

	baseURI := "s3://" + strings.TrimSuffix(c.Bucket+"/"+c.Prefix, "/")

	return s3.NewDDBCommitLogFromConfig(ctx, c.DynamoDBTable, baseURI)
}

func modelOptions(c *config.Config) ([]recgo.Option, error) {
	precision := persistence.Float32
	if c.Model.Precision == "float16" {
		precision = persistence.Float16
	}

	compression, err := persistence.ParseCompression(c.Model.Compression)
	if err != nil {
		return nil, err
	}

	cd, ok := codec.ByName(c.Model.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", codec.ErrUnknownCodec, c.Model.Codec)
	}

	return []recgo.Option{
		recgo.WithFactors(c.Model.Factors),
		recgo.WithPrecision(precision),
		recgo.WithWorkers(c.Model.Workers),
		recgo.WithRegularization(c.Model.Regularization),
		recgo.WithIterations(c.Model.Iterations),
		recgo.WithSeed(c.Model.Seed),
		recgo.WithHNSW(c.Model.M, c.Model.EF),
		recgo.WithCompression(compression),
		recgo.WithCodec(cd),
		recgo.WithCommitHistory(c.Storage.CommitHistory),
		recgo.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:     c.Save.MemoryLimitBytes,
			MaxBackgroundWorkers: c.Save.MaxBackgroundWorkers,
			IOLimitBytesPerSec:   c.Save.IOLimitBytesPerSec,
		})),
	}, nil
}

// openModel builds a model from c. extra options are applied last.
func openModel(ctx context.Context, c *config.Config, extra ...recgo.Option) (*recgo.Model, *recgo.Logger, error) {
	logger, err := newLogger(c.Logging)
	if err != nil {
		return nil, nil, err
	}

	store, err := newStore(ctx, c.Storage)
	if err != nil {
		return nil, nil, err
	}

	commits, err := newCommitLog(ctx, c.Storage)
	if err != nil {
		return nil, nil, err
	}

	optFns, err := modelOptions(c)
	if err != nil {
		return nil, nil, err
	}

	optFns = append(optFns, recgo.WithStore(store), recgo.WithLogger(logger))
	if commits != nil {
		optFns = append(optFns, recgo.WithCommitLog(commits))
	}

	model, err := recgo.New(append(optFns, extra...)...)
	if err != nil {
		return nil, nil, err
	}

	return model, logger, nil
}
