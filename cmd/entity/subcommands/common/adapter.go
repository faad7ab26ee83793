package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"
	prof "github.com/openbraininstitute/entitykit/cmd/entity/config/profiles"
	cerr "github.com/openbraininstitute/entitykit/cmd/entity/errors"
	"github.com/openbraininstitute/entitykit/cmd/entity/rest"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/token"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
	"github.com/youta-t/flarc"
)

type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

// NewTaskWithCommonFlag adapts a task taking CommonFlags into flarc.Task.
//
// The task gets a logger writing to stderr, prefixed with the command name.
// Errors returned from the task are converted into CUIError.
func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		l := logger.New(cl.Stderr(), cl.Fullname())
		if err := logger.SetLevel(l, commonFlag.LogLevel); err != nil {
			l.Warnf("%s. fall-backed to warn", err)
		}

		err := task(ctx, l, commonFlag, cl, newpos)
		if err == nil || errors.Is(err, flarc.ErrUsage) {
			return err
		}
		ce := cerr.FromError(err)
		l.Debug(ce.Verbose())
		return ce
	}
}

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	store forge.Store,
	cl flarc.Commandline[T],
	params []any,
) error

// NewTask adapts a task taking a store into flarc.Task.
//
// The store is a Nexus client for the environment and bucket in CommonFlags,
// authorized with the token of the user.
func NewTask[T any](task Task[T]) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		store, err := Connect(logger, commonFlag, commonFlag.Env, commonFlag.Bucket)
		if err != nil {
			return err
		}
		return task(ctx, logger, store, cl, params)
	})
}

// Connect creates a store for the environment and the bucket.
//
// An empty bucket means the bucket of the profile.
func Connect(logger *log.Logger, commonFlag CommonFlags, env string, bucket string) (forge.Store, error) {
	p, err := prof.Resolve(commonFlag.ProfileStore, env)
	if err != nil {
		return nil, cerr.NewCuiError(
			fmt.Sprintf("environment '%s' is not available", env),
			cerr.WithVerbose("check --env and the profile store "+commonFlag.ProfileStore),
			cerr.WithCause(err),
		)
	}

	tok, err := token.NewKeyring(commonFlag.TokenStore).Get(env, commonFlag.User)
	if err != nil {
		if errors.Is(err, token.ErrNoToken) {
			return nil, cerr.NewCuiError(
				fmt.Sprintf("no token for '%s'. Run `entity token set` first, or set %s", env, token.EnvVar),
				cerr.WithCause(err),
			)
		}
		return nil, cerr.NewCuiError(
			fmt.Sprintf("token for '%s' is not usable. Run `entity token set` to renew it", env),
			cerr.WithCause(err),
		)
	}

	store, err := rest.NewClient(p, bucket, tok, rest.WithLogger(logger))
	if err != nil {
		return nil, cerr.NewCuiError(
			fmt.Sprintf("cannot connect to '%s'. The profile can be broken", env),
			cerr.WithCause(err),
		)
	}
	return store, nil
}
