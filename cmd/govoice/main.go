// Command govoice runs a two-peer voice endpoint. One side listens for the
// control connection, the other dials it; once connected, calls are driven
// from stdin.
//
// Usage:
//
//	govoice -listen -user alice
//	govoice -connect 127.0.0.1:9000 -user bob
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/govoice/audio"
	"github.com/opd-ai/govoice/call"
	"github.com/opd-ai/govoice/config"
	"github.com/opd-ai/govoice/crypto"
	"github.com/opd-ai/govoice/media"
	"github.com/opd-ai/govoice/transport"
)

// staticIdentity satisfies call.IdentityProvider with a fixed username.
type staticIdentity struct {
	user string
}

func (s *staticIdentity) LocalUser() (string, error) {
	if s.user == "" {
		return "", fmt.Errorf("no username set, pass -user")
	}
	return s.user, nil
}

// consoleNotifier prints call events for the interactive session.
type consoleNotifier struct{}

func (consoleNotifier) IncomingCall(from string) {
	fmt.Printf("\n*** incoming call from %s (accept/reject) ***\n> ", from)
}
func (consoleNotifier) OutgoingCallStarted() { fmt.Println("calling...") }
func (consoleNotifier) CallConnected()       { fmt.Println("call connected") }
func (consoleNotifier) CallEnded()           { fmt.Println("call ended") }
func (consoleNotifier) CallError(reason string) {
	fmt.Printf("call failed: %s\n", reason)
}
func (consoleNotifier) DurationTick(seconds int) {
	if seconds%10 == 0 {
		fmt.Printf("in call: %ds\n", seconds)
	}
}

// silenceSource stands in for a microphone until one is wired up.
type silenceSource struct{}

func (silenceSource) ReadFrame() ([]int16, error) {
	return make([]int16, audio.FrameSamples), nil
}

// discardSink stands in for a speaker.
type discardSink struct{}

func (discardSink) WriteFrame(pcm []int16) error { return nil }

// fileSource streams raw 16-bit little-endian mono PCM from a file,
// looping at EOF so short samples keep the call audible.
type fileSource struct {
	f   *os.File
	buf []byte
}

func newFileSource(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio input: %w", err)
	}
	return &fileSource{f: f, buf: make([]byte, audio.FrameBytes)}, nil
}

func (s *fileSource) ReadFrame() ([]int16, error) {
	if _, err := io.ReadFull(s.f, s.buf); err != nil {
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(s.f, s.buf); err != nil {
			return nil, err
		}
	}

	pcm := make([]int16, audio.FrameSamples)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(s.buf[2*i:]))
	}
	return pcm, nil
}

// fileSink appends received PCM to a raw file in the same format.
type fileSink struct {
	f *os.File
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio output: %w", err)
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) WriteFrame(pcm []int16) error {
	buf := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(sample))
	}
	_, err := s.f.Write(buf)
	return err
}

func main() {
	listen := flag.Bool("listen", false, "wait for the peer's control connection")
	connect := flag.String("connect", "", "dial the peer's control address")
	user := flag.String("user", "", "local username announced in signaling")
	configPath := flag.String("config", "", "path to govoice.yaml")
	audioIn := flag.String("audio-in", "", "raw s16le 16 kHz mono file to transmit (silence when empty)")
	audioOut := flag.String("audio-out", "", "raw s16le file for received audio (discarded when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logrus.SetLevel(cfg.LogrusLevel())

	if *listen == (*connect != "") {
		logrus.Fatal("Pass exactly one of -listen or -connect")
	}

	conn, err := establishControl(*listen, *connect, cfg.SignalingAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to establish control connection")
	}

	session, err := crypto.NewSession()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create crypto session")
	}

	udp, err := media.NewTransport(cfg.MediaAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to bind media port")
	}
	defer udp.Close()

	var source call.FrameSource = silenceSource{}
	if *audioIn != "" {
		source, err = newFileSource(*audioIn)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open audio input")
		}
	}

	var sink call.FrameSink = discardSink{}
	if *audioOut != "" {
		sink, err = newFileSink(*audioOut)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open audio output")
		}
	}

	controller, err := call.NewController(call.Config{
		Channel:          transport.NewFramedChannel(conn, session),
		Crypto:           session,
		Media:            udp,
		Identity:         &staticIdentity{user: *user},
		Notifier:         consoleNotifier{},
		Source:           source,
		Sink:             sink,
		CatchUpThreshold: cfg.JitterCatchUp,
		MaxPending:       cfg.JitterMaxFrames,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create call controller")
	}
	defer controller.Close()

	if err := controller.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start control channel")
	}

	logrus.WithFields(logrus.Fields{
		"media_port": udp.LocalPort(),
		"peer":       conn.RemoteAddr(),
	}).Info("Control channel up")

	runConsole(controller)
}

// establishControl accepts or dials the single TCP control connection.
func establishControl(listen bool, connectAddr, listenAddr string) (net.Conn, error) {
	if listen {
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
		}
		defer ln.Close()

		fmt.Printf("waiting for peer on %s...\n", listenAddr)
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept failed: %w", err)
		}
		return conn, nil
	}

	conn, err := net.Dial("tcp", connectAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", connectAddr, err)
	}
	return conn, nil
}

// runConsole reads call commands from stdin until quit or EOF.
func runConsole(controller *call.Controller) {
	fmt.Println("commands: call <user> | accept | reject | hangup | status | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user>")
				continue
			}
			err = controller.Initiate(fields[1])
		case "accept":
			err = controller.Accept()
		case "reject":
			err = controller.Reject()
		case "hangup":
			err = controller.EndCall()
		case "status":
			printStatus(controller.Snapshot())
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}

		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printStatus(s call.Session) {
	fmt.Printf("state: %s\n", s.State)
	if s.State == call.StateIdle {
		return
	}
	fmt.Printf("call %s with %s (%s:%d)\n", s.CallID, s.RemoteUser, s.RemoteAddress, s.RemotePort)
	if s.State == call.StateConnected {
		fmt.Printf("duration: %ds, sent %d pkts / %d bytes, received %d pkts / %d bytes\n",
			s.DurationSeconds,
			s.Traffic.PacketsSent, s.Traffic.BytesSent,
			s.Traffic.PacketsReceived, s.Traffic.BytesReceived)
	}
}
