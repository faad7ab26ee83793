package common

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	kpath "github.com/openbraininstitute/entitykit/pkg/utils/path"
)

// EnvFile is the name of file which names the environment for a directory tree.
//
// The first line of the nearest one (in the directory or its ancestors) is used.
const EnvFile = ".entityenv"

const DefaultEnv = "prod"

type CommonFlags struct {
	Env          string `flag:"env" alias:"e" help:"environment (profile name) of Nexus. 'prod', 'staging' or one in the profile store"`
	ProfileStore string `flag:"profile-store" help:"path to profile store file"`
	TokenStore   string `flag:"token-store" help:"path to directory where tokens are stored"`
	Bucket       string `flag:"bucket" alias:"b" metavar:"ORG/PROJECT" help:"bucket in Nexus. Default: the bucket of the profile"`
	User         string `flag:"user" alias:"u" help:"user name owning the token. Default: the current user"`
	LogLevel     string `flag:"log-level" metavar:"debug|info|warn|error|off" help:"log level"`
}

type commonFlagDetection struct {
	home string
}

type CommonFlagDetectionOption func(*commonFlagDetection) *commonFlagDetection

func WithHome(home string) CommonFlagDetectionOption {
	return func(opt *commonFlagDetection) *commonFlagDetection {
		opt.home = home
		return opt
	}
}

// Flags returns default CommonFlags for the directory.
func Flags(from string, opt ...CommonFlagDetectionOption) (CommonFlags, error) {
	detparam := &commonFlagDetection{}
	for _, o := range opt {
		detparam = o(detparam)
	}

	home := detparam.home
	if home == "" {
		_home, err := os.UserHomeDir()
		if err != nil {
			_home = ""
		}
		home = _home
	}

	if _from, err := filepath.Abs(from); err == nil {
		from = _from
	}

	env := DefaultEnv
	if envfile, err := kpath.SearchUpward(from, EnvFile); err == nil {
		e, err := firstLine(envfile)
		if err != nil {
			return CommonFlags{}, err
		}
		if e != "" {
			env = e
		}
	}

	return CommonFlags{
		Env:          env,
		ProfileStore: filepath.Join(home, ".entity", "profile"),
		TokenStore:   filepath.Join(home, ".entity", "tokens"),
		LogLevel:     "warn",
	}, nil
}

func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	if s.Scan() {
		return strings.TrimSpace(s.Text()), nil
	}
	return "", s.Err()
}
