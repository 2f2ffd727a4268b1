package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/peer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var opts struct {
	server     string
	room       string
	name       string
	call       bool
	target     string
	autoAccept bool
	broadcast  bool
	iceServers []string
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:   "duet-peer",
	Short: "Chat with one other peer over a WebRTC data channel",
	Long: `duet-peer connects to a duet signaling server, negotiates a WebRTC
peer connection with the other member of a room and pipes stdin lines
into a data channel.`,
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.server, "server", "s", "ws://localhost:8080/ws", "signaling server URL")
	f.StringVarP(&opts.room, "room", "r", "", "room to join")
	f.StringVarP(&opts.name, "name", "n", "", "display name")
	f.BoolVar(&opts.call, "call", false, "place the call instead of waiting for one")
	f.StringVar(&opts.target, "target", "", "peer to call when the server runs the broadcast topology")
	f.BoolVarP(&opts.autoAccept, "auto-accept", "y", false, "accept incoming calls without asking")
	f.BoolVar(&opts.broadcast, "broadcast", false, "server runs the broadcast topology (login instead of rooms)")
	f.StringSliceVar(&opts.iceServers, "ice", peer.DefaultICEServers, "ICE server URLs")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if opts.name == "" {
		return errors.New("--name is required")
	}
	if !opts.broadcast && opts.room == "" {
		return errors.New("--room is required unless --broadcast is set")
	}
	if opts.broadcast && opts.call && opts.target == "" {
		return errors.New("--target is required to call in broadcast mode")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sig, err := peer.Dial(ctx, opts.server)
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	policy := peer.AcceptPolicy(peer.AutoAccept)
	if !opts.autoAccept {
		policy = peer.Prompt(stdin, os.Stderr)
	}

	session := peer.NewSession(sig, peer.Config{
		Name:       opts.name,
		Room:       domain.RoomID(opts.room),
		ICEServers: opts.iceServers,
		Policy:     policy,
		Broadcast:  opts.broadcast,
		Target:     opts.target,
	})
	defer session.Close()

	if err := session.Join(); err != nil {
		return err
	}
	if opts.call {
		if err := session.Call(); err != nil {
			return err
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- session.Run(ctx) }()

	select {
	case <-session.Opened():
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}

	fmt.Fprintln(os.Stderr, "connected, type to chat")
	go printFrames(ctx, session)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := stdin.ReadString('\n')
			if line = strings.TrimRight(line, "\r\n"); line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := session.SendText(line); err != nil {
				log.Warn().Err(err).Msg("Failed to send")
			}
		}
	}
}

func printFrames(ctx context.Context, s *peer.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.Frames():
			fmt.Printf("[%s] %s: %s\n", f.SentAt.Format("15:04:05"), f.From, f.Text)
		}
	}
}
