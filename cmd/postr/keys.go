package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/urfave/cli/v2"
)

var errHaveKey = errors.New("this profile already has a key, use --force to replace it")

func checkNoKey(cCtx *cli.Context) (err error) {
	if cCtx.Bool("force") {
		return
	}
	var ok bool
	if _, ok, err = getSession(cCtx).Identity.Load(); err != nil {
		return
	}
	if ok {
		return errHaveKey
	}
	return
}

func Keygen(cCtx *cli.Context) (err error) {
	if err = checkNoKey(cCtx); err != nil {
		return
	}
	id := getSession(cCtx).Identity
	var sec []byte
	if sec, err = id.Generate(); chk.E(err) {
		return
	}
	if err = id.Persist(sec); err != nil {
		return
	}
	return WhoAmI(cCtx)
}

func Import(cCtx *cli.Context) (err error) {
	if err = checkNoKey(cCtx); err != nil {
		return
	}
	key := cCtx.Args().First()
	if key == "" {
		fmt.Fprint(os.Stderr, "secret key: ")
		if key, err = bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
			return
		}
	}
	id := getSession(cCtx).Identity
	var sec []byte
	if sec, err = id.DecodeSecret(strings.TrimSpace(key)); err != nil {
		return
	}
	if err = id.Persist(sec); err != nil {
		return
	}
	return WhoAmI(cCtx)
}

func WhoAmI(cCtx *cli.Context) (err error) {
	id := getSession(cCtx).Identity
	var pub, npub string
	if pub, err = id.Public(); err != nil {
		return
	}
	if npub, err = id.EncodePublic(pub); err != nil {
		return
	}
	fmt.Println(npub)
	fmt.Println(pub)
	if cCtx.Bool("secret") {
		var sec []byte
		if sec, err = id.Secret(); err != nil {
			return
		}
		var nsec string
		if nsec, err = id.EncodeSecret(sec); err != nil {
			return
		}
		fmt.Println(nsec)
	}
	if cCtx.Bool("qr") {
		qrterminal.GenerateWithConfig("nostr:"+npub, qrterminal.Config{
			HalfBlocks:     true,
			Level:          qrterminal.L,
			Writer:         os.Stdout,
			BlackChar:      qrterminal.BLACK_BLACK,
			WhiteChar:      qrterminal.WHITE_WHITE,
			BlackWhiteChar: qrterminal.BLACK_WHITE,
			WhiteBlackChar: qrterminal.WHITE_BLACK,
			QuietZone:      2,
		})
	}
	return
}

func Logout(cCtx *cli.Context) (err error) {
	if err = getSession(cCtx).Logout(); err != nil {
		return
	}
	fmt.Println("logged out of profile", cCtx.String("profile"))
	return
}
