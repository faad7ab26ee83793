// Package token is the "token" command group: set, get and decode the access token.
package token

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/pkg/token"
	"github.com/youta-t/flarc"
)

func New(options ...token.Option) (flarc.Command, error) {
	set, err := flarc.NewCommand(
		"Validate and store a token for the environment.",
		SetFlags{},
		flarc.Args{},
		common.NewTaskWithCommonFlag(SetTask(options...)),
		flarc.WithDescription(`
Store a token for the environment (--env) and the user (--user).

The token is read from --token, or the first line of stdin when it is not given.
It should be a JWT which is not expired.

    {{ .Command }} --token "$(cat token.txt)"
    pbpaste | {{ .Command }}
`),
	)
	if err != nil {
		return nil, err
	}
	get, err := flarc.NewCommand(
		"Print the token for the environment.",
		struct{}{},
		flarc.Args{},
		common.NewTaskWithCommonFlag(GetTask(options...)),
	)
	if err != nil {
		return nil, err
	}
	decode, err := flarc.NewCommand(
		"Print claims of the token for the environment, and when it expires.",
		struct{}{},
		flarc.Args{},
		common.NewTaskWithCommonFlag(DecodeTask(options...)),
	)
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Manage access tokens of Nexus.",
		struct{}{},
		flarc.WithSubcommand("set", set),
		flarc.WithSubcommand("get", get),
		flarc.WithSubcommand("decode", decode),
	)
}

type SetFlags struct {
	Token string `flag:"token" alias:"t" help:"Value of token to set. Default: the first line of stdin."`
}

func SetTask(options ...token.Option) common.TaskWithCommonFlag[SetFlags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cf common.CommonFlags,
		cl flarc.Commandline[SetFlags],
		_ []any,
	) error {
		tok := cl.Flags().Token
		if tok == "" {
			s := bufio.NewScanner(cl.Stdin())
			s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			if s.Scan() {
				tok = strings.TrimSpace(s.Text())
			}
			if err := s.Err(); err != nil {
				return err
			}
		}
		if tok == "" {
			return fmt.Errorf("%w: no token is given", flarc.ErrUsage)
		}

		kr := token.NewKeyring(cf.TokenStore, options...)
		if err := kr.Set(cf.Env, cf.User, tok); err != nil {
			return err
		}
		exp, err := token.Expiry(tok)
		if err != nil {
			return err
		}
		logger.Infof("token is stored in %s", cf.TokenStore)
		_, err = fmt.Fprintf(
			cl.Stdout(), "token for %s is saved. It expires at %s\n",
			cf.Env, exp.Local().Format(time.RFC3339),
		)
		return err
	}
}

func GetTask(options ...token.Option) common.TaskWithCommonFlag[struct{}] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cf common.CommonFlags,
		cl flarc.Commandline[struct{}],
		_ []any,
	) error {
		tok, err := token.NewKeyring(cf.TokenStore, options...).Get(cf.Env, cf.User)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cl.Stdout(), tok)
		return err
	}
}

func DecodeTask(options ...token.Option) common.TaskWithCommonFlag[struct{}] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cf common.CommonFlags,
		cl flarc.Commandline[struct{}],
		_ []any,
	) error {
		tok, err := token.NewKeyring(cf.TokenStore, options...).Get(cf.Env, cf.User)
		if err != nil {
			return err
		}
		claims, err := token.Decode(tok)
		if err != nil {
			return err
		}
		if err := common.WriteJSON(cl.Stdout(), claims); err != nil {
			return err
		}
		exp, err := token.Expiry(tok)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(
			cl.Stdout(), "expires at %s (in %s)\n",
			exp.Local().Format(time.RFC3339), time.Until(exp).Truncate(time.Second),
		)
		return err
	}
}
