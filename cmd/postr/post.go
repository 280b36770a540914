package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"
)

func Post(cCtx *cli.Context) (err error) {
	stdin := cCtx.Bool("stdin")
	if !stdin && cCtx.Args().Len() == 0 {
		return cli.ShowSubcommandHelp(cCtx)
	}
	var content string
	if stdin {
		var b []byte
		if b, err = io.ReadAll(os.Stdin); chk.D(err) {
			return
		}
		content = string(b)
	} else {
		content = strings.Join(cCtx.Args().Slice(), "\n")
	}
	tt := tags.T{}
	for _, t := range cCtx.StringSlice("t") {
		tt = tt.AppendUnique(tag.New("t", strings.TrimPrefix(t, "#")))
	}
	s := getSession(cCtx)
	var ev *event.T
	if ev, err = s.Factory.Note(content, tt); err != nil {
		return
	}
	return publish(cCtx, ev)
}

func publish(cCtx *cli.Context, ev *event.T) (err error) {
	s := getSession(cCtx)
	var acks pool.Acks
	if acks, err = s.Publish(s.Ctx, ev); err != nil {
		return
	}
	return printAcks(ev, acks)
}

// eventID accepts a note1 or a hex id.
func eventID(s string) (id string, err error) {
	s = strings.TrimSpace(s)
	if keys.IsValid32ByteHex(s) {
		return s, nil
	}
	var prefix string
	var value any
	if prefix, value, err = nip19.Decode(s); err != nil {
		return "", fmt.Errorf("invalid note id '%s': %w", s, err)
	}
	switch prefix {
	case "note":
		return value.(string), nil
	case "nevent":
		return value.(nostr.EventPointer).ID, nil
	}
	return "", fmt.Errorf("'%s' is not a note id", s)
}

func React(cCtx *cli.Context) (err error) {
	var id string
	if id, err = eventID(cCtx.String("id")); err != nil {
		return
	}
	s := getSession(cCtx)
	author := cCtx.String("author")
	if author != "" {
		if author, err = s.Identity.DecodePublic(author); err != nil {
			return
		}
	} else {
		c, cancel := timeout(cCtx)
		defer cancel()
		res, qerr := s.Query(c, filters.T{{IDs: []string{id}}}, 0)
		if qerr != nil {
			return qerr
		}
		if len(res.Events) == 0 {
			return errors.New("note not found on any relay, give --author")
		}
		author = res.Events[0].PubKey
	}
	var ev *event.T
	if ev, err = s.Factory.Reaction(id, author, cCtx.String("content")); err != nil {
		return
	}
	return publish(cCtx, ev)
}
