package main

import (
	"bytes"
	"fmt"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/profile"
	"github.com/Hubmakerlabs/postr/pkg/timeline"
	"github.com/urfave/cli/v2"
)

func assembler(cCtx *cli.Context) *timeline.Assembler {
	return timeline.New(getSession(cCtx).Pool(), cCtx.Duration("timeout"))
}

func Timeline(cCtx *cli.Context) (err error) {
	s := getSession(cCtx)
	var urls []string
	if urls, err = s.Relays(); err != nil {
		return
	}
	a := assembler(cCtx)
	var page timeline.Page
	if u := cCtx.String("u"); u != "" {
		var pub string
		if pub, err = s.Identity.DecodePublic(u); err != nil {
			return
		}
		page = a.Feed(s.Ctx, []string{pub}, urls, cCtx.Int("n"), nil)
	} else {
		var pub string
		if pub, err = s.Identity.Public(); err != nil {
			return
		}
		if page, err = a.Home(s.Ctx, pub, urls, cCtx.Int("n")); err != nil {
			return
		}
	}
	if page.NoData {
		return fmt.Errorf("no relay answered: %v", page.Failed)
	}
	for u, ferr := range page.Failed {
		log.W.F("%s: %v", u, ferr)
	}
	var names map[string]*profile.T
	if !cCtx.Bool("json") {
		names = authors(cCtx, page.Events, urls)
	}
	printEvents(page.Events, names, cCtx.Bool("json"))
	return
}

// authors looks up the profiles of the authors of evs, ignoring failures.
func authors(cCtx *cli.Context, evs []*event.T,
	urls []string) (names map[string]*profile.T) {

	seen := make(map[string]struct{})
	var pubs []string
	for _, ev := range evs {
		if _, ok := seen[ev.PubKey]; !ok {
			seen[ev.PubKey] = struct{}{}
			pubs = append(pubs, ev.PubKey)
		}
	}
	if len(pubs) == 0 {
		return
	}
	var err error
	if names, err = resolver(cCtx).ResolveMany(getSession(cCtx).Ctx, pubs,
		urls); chk.D(err) {
		return nil
	}
	return
}

// Stream prints new notes until interrupted.
func Stream(cCtx *cli.Context) (err error) {
	s := getSession(cCtx)
	var urls []string
	if urls, err = s.Relays(); err != nil {
		return
	}
	a := assembler(cCtx)
	var who []string
	for _, u := range cCtx.StringSlice("u") {
		var pub string
		if pub, err = s.Identity.DecodePublic(u); err != nil {
			return
		}
		who = append(who, pub)
	}
	if len(who) == 0 {
		var pub string
		if pub, err = s.Identity.Public(); err != nil {
			return
		}
		if who, err = a.Follows(s.Ctx, pub, urls); err != nil {
			return
		}
		who = append(who, pub)
	}
	asJSON := cCtx.Bool("json")
	var cancel func()
	if cancel, err = a.Live(s.Ctx, who, urls, func(ev *event.T) {
		buf := new(bytes.Buffer)
		printEvent(buf, ev, nil, asJSON)
		fmt.Print(buf.String())
	}); err != nil {
		return
	}
	defer cancel()
	log.I.F("streaming notes of %d users from %d relays, ^C to stop",
		len(who), len(urls))
	<-s.Ctx.Done()
	return
}
