// Command postr is a command line client: it keeps a key and a relay list
// per profile and publishes to and reads from all the relays at once.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/interrupt"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/session"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/Hubmakerlabs/postr/pkg/store"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

const appName = "postr"

const version = "0.1.0"

var profileName = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func dataDir(cCtx *cli.Context) (dir string, err error) {
	if dir = cCtx.String("datadir"); dir == "" {
		if dir, err = os.UserConfigDir(); chk.E(err) {
			return
		}
		dir = filepath.Join(dir, appName)
	}
	profile := cCtx.String("profile")
	if !profileName.MatchString(profile) {
		return "", fmt.Errorf("invalid profile name '%s'", profile)
	}
	dir = filepath.Join(dir, profile)
	if err = os.MkdirAll(dir, 0700); chk.E(err) {
		return
	}
	return
}

func getSession(cCtx *cli.Context) *session.T {
	return cCtx.App.Metadata["session"].(*session.T)
}

func doVersion(_ *cli.Context) (err error) {
	fmt.Println(version)
	return
}

func newApp() *cli.App {
	return &cli.App{
		Name:        appName,
		Usage:       "post to and read from many nostr relays at once",
		Description: "A cli application for nostr",
		Version:     version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "profile", Aliases: []string{"a"},
				Value: "default", Usage: "profile name, each has its own key and relays"},
			&cli.StringFlag{Name: "datadir", Usage: "where profiles are kept " +
				"(default: user config dir/postr)", EnvVars: []string{"POSTR_DATADIR"}},
			&cli.StringFlag{Name: "loglevel", Value: "warn",
				Usage: "off, fatal, error, warn, info, debug or trace"},
			&cli.DurationFlag{Name: "timeout", Value: pool.DefaultQueryTimeout,
				Usage: "how long to wait for relays"},
		},
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "create a new key for this profile",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "replace an existing key"}},
				Action: Keygen,
			},
			{
				Name:      "import",
				Usage:     "use an existing secret key (nsec or hex)",
				ArgsUsage: "[nsec]",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "replace an existing key"}},
				Action:    Import,
			},
			{
				Name:  "whoami",
				Usage: "show the public key of this profile",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "qr", Usage: "also show it as a QR code"},
					&cli.BoolFlag{Name: "secret", Usage: "show the nsec too"},
				},
				Action: WhoAmI,
			},
			{
				Name:   "logout",
				Usage:  "forget the key of this profile",
				Action: Logout,
			},
			{
				Name:  "relays",
				Usage: "manage the relay list",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "show the relays, with --check their state",
						Flags:  []cli.Flag{&cli.BoolFlag{Name: "check", Usage: "connect to each relay"}},
						Action: RelaysList,
					},
					{
						Name:      "add",
						Usage:     "add relays",
						ArgsUsage: "[url...]",
						Action:    RelaysAdd,
					},
					{
						Name:      "remove",
						Aliases:   []string{"rm"},
						Usage:     "remove relays",
						ArgsUsage: "[url...]",
						Action:    RelaysRemove,
					},
				},
			},
			{
				Name:    "post",
				Aliases: []string{"n"},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stdin", Usage: "read the note from stdin"},
					&cli.StringSliceFlag{Name: "t", Usage: "hashtags"},
				},
				Usage:     "post new note",
				UsageText: appName + " post [note text]",
				ArgsUsage: "[note text]",
				Action:    Post,
			},
			{
				Name:    "react",
				Aliases: []string{"like", "l"},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Usage: "note1 or hex id"},
					&cli.StringFlag{Name: "author", Usage: "author of the note, looked up if not given"},
					&cli.StringFlag{Name: "content", Value: "+", Usage: "reaction"},
				},
				Usage:     "react to a note",
				UsageText: appName + " react --id [id]",
				Action:    React,
			},
			{
				Name:  "profile",
				Usage: "show or change profiles",
				Subcommands: []*cli.Command{
					{
						Name:      "get",
						Usage:     "show a profile, your own by default",
						ArgsUsage: "[npub]",
						Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output JSON"}},
						Action:    ProfileGet,
					},
					{
						Name:  "set",
						Usage: "change fields of your profile",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name"},
							&cli.StringFlag{Name: "display-name"},
							&cli.StringFlag{Name: "about"},
							&cli.StringFlag{Name: "picture"},
							&cli.StringFlag{Name: "banner"},
							&cli.StringFlag{Name: "website"},
							&cli.StringFlag{Name: "nip05"},
							&cli.StringFlag{Name: "lud16"},
						},
						Action: ProfileSet,
					},
				},
			},
			{
				Name:    "timeline",
				Aliases: []string{"tl"},
				Usage:   "show notes of the people you follow",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 30, Usage: "number of items"},
					&cli.StringFlag{Name: "u", Usage: "show this user's notes instead"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Action: Timeline,
			},
			{
				Name:  "stream",
				Usage: "show new notes as they arrive",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "u", Usage: "users to follow instead of your follow list"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Action: Stream,
			},
			{
				Name:   "version",
				Usage:  "show version",
				Action: doVersion,
			},
		},
		Before: func(cCtx *cli.Context) (err error) {
			slog.SetLogLevel(slog.GetLevelByName(cCtx.String("loglevel")))
			if cCtx.Args().Get(0) == "version" {
				return
			}
			var dir string
			if dir, err = dataDir(cCtx); err != nil {
				return
			}
			log.D.F("using profile directory '%s'", dir)
			var st *store.T
			if st, err = store.Open(dir); err != nil {
				return
			}
			c, stop := context.Cancel(context.Bg())
			interrupt.AddHandler(stop)
			cCtx.App.Metadata = map[string]any{
				"session": session.New(c, st,
					pool.WithQueryTimeout(cCtx.Duration("timeout"))),
				"stop": stop,
			}
			return
		},
		After: func(cCtx *cli.Context) (err error) {
			if s, ok := cCtx.App.Metadata["session"].(*session.T); ok {
				chk.E(s.Close())
			}
			if stop, ok := cCtx.App.Metadata["stop"].(context.F); ok {
				stop()
			}
			return
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// timeout returns a context bounded by the --timeout flag.
func timeout(cCtx *cli.Context) (context.T, context.F) {
	return context.Timeout(getSession(cCtx).Ctx, cCtx.Duration("timeout")+
		time.Second)
}
