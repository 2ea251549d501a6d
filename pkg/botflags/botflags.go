// Package botflags provides the CLI flag conventions shared by every
// bot binary (spec.md §6: --datadir, --dryrun, --statefile,
// --rcdatabasefile, --config-path), grounded on
// kubernetes-sigs-prow/pkg/flagutil's AddFlags/Validate option-group
// idiom but built on github.com/spf13/pflag.
package botflags

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// CommonOptions is the option group every bot's gatherOptions embeds.
type CommonOptions struct {
	DataDir        string
	DryRun         bool
	StateFile      string
	RCDatabaseFile string
	ConfigPath     string
	Debug          bool
	HealthPort     int
}

// AddFlags registers the shared flags onto fs. Bots call this from
// their own gatherOptions alongside any bot-specific flags.
func (o *CommonOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.DataDir, "datadir", "", "Parent directory for local stores and state files.")
	fs.BoolVar(&o.DryRun, "dryrun", false, "Make no remote writes and no queue mutations.")
	fs.StringVar(&o.StateFile, "statefile", "", "Per-bot JSON state file (defaults under --datadir).")
	fs.StringVar(&o.RCDatabaseFile, "rcdatabasefile", "", "ChangeLog store path (defaults under --datadir).")
	fs.StringVar(&o.ConfigPath, "config-path", "", "Path to the bot's YAML configuration file.")
	fs.BoolVar(&o.Debug, "debug", false, "Enable debug-level logging.")
	fs.IntVar(&o.HealthPort, "health-port", 8081, "Port to serve /healthz on.")
}

// Validate fills in --statefile/--rcdatabasefile defaults relative to
// --datadir and checks required flags are present.
func (o *CommonOptions) Validate(name string) error {
	if o.DataDir == "" {
		return errors.New("--datadir is required")
	}
	if o.StateFile == "" {
		o.StateFile = filepath.Join(o.DataDir, name+".state.json")
	}
	if o.RCDatabaseFile == "" {
		o.RCDatabaseFile = filepath.Join(o.DataDir, "changelog.sqlite")
	}
	return nil
}

// WikiOptions is the option group binding a bot to a wiki account,
// grounded on kubernetes-sigs-prow's GitHubOptions
// (cmd/peribolos/main.go's --github-token-path): the secret is read
// from a file path rather than accepted directly on the command line.
type WikiOptions struct {
	APIURL              string
	UserName            string
	PasswordPath        string
	UserAgent           string
	DelayBeforeRequests time.Duration
	DelayBetweenEdits   time.Duration

	password string
}

// AddFlags registers the wiki connection flags onto fs.
func (o *WikiOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.APIURL, "api-url", "", "Address of the wiki's api.php.")
	fs.StringVar(&o.UserName, "username", "", "Bot account user name.")
	fs.StringVar(&o.PasswordPath, "password-path", "", "Path to a file containing the bot account's password.")
	fs.StringVar(&o.UserAgent, "user-agent", "wikibots-go", "User-Agent sent on every API request.")
	fs.DurationVar(&o.DelayBeforeRequests, "delay-before-requests", 0, "Sleep inserted before every API request.")
	fs.DurationVar(&o.DelayBetweenEdits, "delay-between-edits", 0, "Minimum spacing enforced between edits.")
}

// Validate checks required flags are present and loads the password
// file.
func (o *WikiOptions) Validate(_ string) error {
	if o.APIURL == "" {
		return errors.New("--api-url is required")
	}
	if o.UserName == "" {
		return errors.New("--username is required")
	}
	if o.PasswordPath == "" {
		return errors.New("--password-path is required")
	}
	data, err := os.ReadFile(o.PasswordPath)
	if err != nil {
		return err
	}
	o.password = strings.TrimSpace(string(data))
	return nil
}

// Password returns the password loaded by Validate.
func (o *WikiOptions) Password() string { return o.password }
