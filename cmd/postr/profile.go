package main

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/metadata"
	"github.com/Hubmakerlabs/postr/pkg/profile"
	"github.com/urfave/cli/v2"
)

func resolver(cCtx *cli.Context) *profile.Resolver {
	return profile.NewResolver(getSession(cCtx).Pool(), cCtx.Duration("timeout"))
}

func ProfileGet(cCtx *cli.Context) (err error) {
	s := getSession(cCtx)
	var pub string
	if who := cCtx.Args().First(); who != "" {
		if pub, err = s.Identity.DecodePublic(who); err != nil {
			return
		}
	} else if pub, err = s.Identity.Public(); err != nil {
		return
	}
	var urls []string
	if urls, err = s.Relays(); err != nil {
		return
	}
	var p *profile.T
	if p, err = resolver(cCtx).Resolve(s.Ctx, pub, urls); err != nil {
		return
	}
	if cCtx.Bool("json") {
		fmt.Println(p.Event.Content)
		return
	}
	m := p.Metadata
	for _, f := range [][2]string{
		{"name", m.Name},
		{"display name", m.DisplayName},
		{"about", m.About},
		{"picture", m.Picture},
		{"banner", m.Banner},
		{"website", m.Website},
		{"nip05", m.Nip05},
		{"lud16", m.Lud16},
	} {
		if f[1] != "" {
			fmt.Printf("%-13s %s\n", f[0]+":", f[1])
		}
	}
	fmt.Printf("%-13s %s\n", "updated:", p.Event.CreatedAt.Time())
	return
}

// ProfileSet publishes the current profile with the given flags changed.
func ProfileSet(cCtx *cli.Context) (err error) {
	s := getSession(cCtx)
	var pub string
	if pub, err = s.Identity.Public(); err != nil {
		return
	}
	var urls []string
	if urls, err = s.Relays(); err != nil {
		return
	}
	m := &metadata.T{}
	var p *profile.T
	switch p, err = resolver(cCtx).Resolve(s.Ctx, pub, urls); {
	case err == nil:
		m = p.Metadata
	case errors.Is(err, profile.ErrNotFound):
		err = nil
	default:
		return fmt.Errorf("not overwriting a profile that could not be read: %w",
			err)
	}
	for flag, field := range map[string]*string{
		"name":         &m.Name,
		"display-name": &m.DisplayName,
		"about":        &m.About,
		"picture":      &m.Picture,
		"banner":       &m.Banner,
		"website":      &m.Website,
		"nip05":        &m.Nip05,
		"lud16":        &m.Lud16,
	} {
		if cCtx.IsSet(flag) {
			*field = cCtx.String(flag)
		}
	}
	var ev *event.T
	if ev, err = s.Factory.Metadata(m); err != nil {
		return
	}
	return publish(cCtx, ev)
}
