package main

import (
	"context"
	"fmt"

	"github.com/acksell/ddbupdate/dynamodb/ddbsdk"
	"github.com/acksell/ddbupdate/dynamodb/ddbstore"
	"github.com/acksell/ddbupdate/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type applyOptions struct {
	file               string
	output             string
	memory             bool
	localDir           string
	region             string
	profile            string
	endpoint           string
	allowNonIdempotent bool
}

func applyCmd(app *app) *cobra.Command {
	var opts applyOptions
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "send the update in an update file and print the returned attributes",
		Example: `  ddbupdate apply -f update.yaml --region eu-west-1
  ddbupdate apply -f update.yaml --local ./data
  ddbupdate apply -f update.yaml --memory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.region == "" {
				opts.region = app.cfg.Region
			}
			if opts.profile == "" {
				opts.profile = app.cfg.Profile
			}
			if opts.endpoint == "" {
				opts.endpoint = app.cfg.Endpoint
			}
			out, err := runApply(cmd.Context(), app.log, opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, dynamoJSONMap(out.Attributes))
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "update file (yaml)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "apply to a throwaway in-memory store")
	cmd.Flags().StringVar(&opts.localDir, "local", "", "apply to a local badger store in this directory")
	cmd.Flags().StringVar(&opts.region, "region", "", "AWS region")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "AWS shared config profile")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "DynamoDB endpoint URL")
	cmd.Flags().BoolVar(&opts.allowNonIdempotent, "allow-non-idempotent", false, "allow ADD and list appends")
	cmd.MarkFlagsMutuallyExclusive("memory", "local")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runApply(ctx context.Context, log *zap.Logger, opts applyOptions) (*dynamodb.UpdateItemOutput, error) {
	f, err := readUpdateFile(opts.file)
	if err != nil {
		return nil, err
	}
	if opts.allowNonIdempotent {
		f.AllowNonIdempotent = true
	}
	if f.ReturnValues == "" {
		f.ReturnValues = string(types.ReturnValueAllNew)
	}
	u, err := f.toUpdate()
	if err != nil {
		return nil, err
	}

	client, closeFn, err := newClient(ctx, log, opts, u.Table)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return client.UpdateItem(ctx, u)
}

func newClient(ctx context.Context, log *zap.Logger, opts applyOptions, def table.TableDefinition) (*ddbsdk.Client, func(), error) {
	if opts.memory || opts.localDir != "" {
		client, store, err := ddbsdk.NewLocalClient(ddbstore.StoreOptions{
			Path:     opts.localDir,
			InMemory: opts.memory,
			Logger:   log,
		}, def)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {
			if err := store.Close(); err != nil {
				log.Warn("failed to close local store", zap.Error(err))
			}
		}, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.region))
	}
	if opts.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	awsddb := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.endpoint != "" {
			o.BaseEndpoint = aws.String(opts.endpoint)
		}
	})
	return ddbsdk.New(awsddb, ddbsdk.WithLogger(log)), func() {}, nil
}
