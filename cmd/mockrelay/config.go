package main

import (
	"encoding/json"
	"errors"
	"os"
)

type InitCfg struct{}

type Config struct {
	InitCfgCmd   *InitCfg `arg:"subcommand:initcfg" json:"-" help:"write the configuration to the --config file and exit"`
	ConfigFile   string   `arg:"-c,--config" json:"-" help:"load settings from this JSON file"`
	Listen       string   `arg:"-l,--listen" default:"127.0.0.1:3334" json:"listen" help:"network address to listen on"`
	Behaviour    string   `arg:"-b,--behaviour" default:"accept" json:"behaviour" help:"how to answer: accept, reject, silent, close or drop"`
	RejectReason string   `arg:"--reject" json:"reject_reason,omitempty" help:"message sent with OK false in reject mode"`
	ClosedReason string   `arg:"--closed" json:"closed_reason,omitempty" help:"message sent with CLOSED in close mode"`
	LogLevel     string   `arg:"--loglevel" default:"info" json:"loglevel" help:"set log level [off,fatal,error,warn,info,debug,trace] (can also use GODEBUG environment variable)"`
}

func (c *Config) Save(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot save nil mockrelay config")
		log.E.Ln(err)
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(c, "", "    "); chk.E(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

func (c *Config) Load(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot load into nil config")
		chk.E(err)
		return
	}
	var b []byte
	if b, err = os.ReadFile(filename); chk.E(err) {
		return
	}
	if err = json.Unmarshal(b, c); chk.E(err) {
		return
	}
	return
}
