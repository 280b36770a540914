package main

import (
	"fmt"

	"github.com/Hubmakerlabs/postr/pkg/relay"
	"github.com/gookit/color"
	"github.com/urfave/cli/v2"
)

func RelaysList(cCtx *cli.Context) (err error) {
	s := getSession(cCtx)
	var urls []string
	if urls, err = s.Relays(); err != nil {
		return
	}
	if !cCtx.Bool("check") {
		for _, u := range urls {
			fmt.Println(u)
		}
		return
	}
	c, cancel := timeout(cCtx)
	defer cancel()
	_, failed := s.Pool().EnsureConnected(c, urls)
	states := s.Pool().States()
	for _, u := range urls {
		st, ok := states[u]
		switch {
		case ok && st == relay.Connected:
			fmt.Println(u, color.FgGreen.Sprint(st))
		case failed[u] != nil:
			fmt.Println(u, color.FgRed.Sprint(relay.Failed), failed[u])
		default:
			fmt.Println(u, color.FgYellow.Sprint(st))
		}
	}
	return
}

func RelaysAdd(cCtx *cli.Context) (err error) {
	if cCtx.Args().Len() == 0 {
		return cli.ShowSubcommandHelp(cCtx)
	}
	s := getSession(cCtx)
	for _, u := range cCtx.Args().Slice() {
		if _, err = s.AddRelay(u); err != nil {
			return
		}
	}
	return RelaysList(cCtx)
}

func RelaysRemove(cCtx *cli.Context) (err error) {
	if cCtx.Args().Len() == 0 {
		return cli.ShowSubcommandHelp(cCtx)
	}
	s := getSession(cCtx)
	for _, u := range cCtx.Args().Slice() {
		if _, err = s.RemoveRelay(u); err != nil {
			return
		}
	}
	return RelaysList(cCtx)
}
