package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"speedhockey/internal/client"
	"speedhockey/internal/codec"
	"speedhockey/internal/config"
	"speedhockey/internal/hockey"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:3000/ws", "server websocket url")
		codecName  = flag.String("codec", "proto", "wire codec: proto, json or msgpack")
		teamName   = flag.String("team", "red", "team to join: red, blu or spectator")
		configPath = flag.String("config", "", "config file for the log level")
		interval   = flag.Duration("interval", 16*time.Millisecond, "time between paddle updates")
	)
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(config.Config.Level())

	c, err := codec.ByName(*codecName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	team := parseTeam(*teamName)
	if team == hockey.TeamUnrecognized {
		fmt.Fprintf(os.Stderr, "unknown team %q\n", *teamName)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot := &client.Bot{URL: *url, Codec: c, Team: team, InputInterval: *interval}
	if err := bot.Run(ctx); err != nil {
		slog.Error("bot stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseTeam(s string) hockey.Team {
	if n, err := strconv.Atoi(s); err == nil {
		return hockey.TeamFromInt(int32(n))
	}
	return hockey.TeamFromName(s)
}
