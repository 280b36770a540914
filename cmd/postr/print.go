package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/profile"
	"github.com/gookit/color"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var errNoRelayAccepted = errors.New("no relay accepted the event")

// printAcks shows what each relay said and fails if none accepted.
func printAcks(ev *event.T, acks pool.Acks) (err error) {
	note, nerr := nip19.EncodeNote(ev.ID)
	if chk.D(nerr) {
		note = ev.ID
	}
	fmt.Println(color.FgBlue.Sprint(note))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, u := range acks.URLs() {
		ack := acks[u]
		status := color.FgGreen.Sprint(ack.Status)
		if ack.Status != pool.Success {
			status = color.FgRed.Sprint(ack.Status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", u, status, ack.Reason)
	}
	chk.D(w.Flush())
	if len(acks.Succeeded()) == 0 {
		return errNoRelayAccepted
	}
	return
}

// printEvents writes evs newest first, with author names where known.
func printEvents(evs []*event.T, names map[string]*profile.T, asJSON bool) {
	buffer := new(bytes.Buffer)
	for _, ev := range evs {
		printEvent(buffer, ev, names[ev.PubKey], asJSON)
	}
	fmt.Print(buffer.String())
}

func printEvent(buffer *bytes.Buffer, ev *event.T, p *profile.T,
	asJSON bool) {

	if asJSON {
		b, err := ev.MarshalJSON()
		if chk.D(err) {
			return
		}
		buffer.Write(b)
		buffer.WriteByte('\n')
		return
	}
	name := ev.PubKey
	if p != nil {
		name = p.Name()
	} else if npub, err := nip19.EncodePublicKey(ev.PubKey); err == nil {
		name = npub
	}
	note, err := nip19.EncodeNote(ev.ID)
	if err != nil {
		note = ev.ID
	}
	fmt.Fprintln(buffer, color.FgRed.Sprint(name))
	fmt.Fprintln(buffer, ev.Content)
	fmt.Fprintln(buffer, color.FgBlue.Sprint(note), " ",
		color.FgBlue.Sprint(ev.CreatedAt.Time()))
	fmt.Fprintln(buffer)
}
