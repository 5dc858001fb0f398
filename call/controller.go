package call

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/govoice/audio"
	"github.com/opd-ai/govoice/crypto"
	"github.com/opd-ai/govoice/media"
	"github.com/opd-ai/govoice/signaling"
	"github.com/opd-ai/govoice/transport"
)

// Config carries the collaborators and tunables of a Controller.
type Config struct {
	// Channel is the framed control channel to the peer.
	Channel *transport.FramedChannel

	// Crypto is the channel's crypto session; the controller derives its
	// key when the peer handshake arrives.
	Crypto *crypto.Session

	// Media is the process-wide UDP endpoint for audio frames.
	Media *media.Transport

	Identity IdentityProvider
	Notifier Notifier

	// Source delivers capture frames, Sink accepts playback frames.
	Source FrameSource
	Sink   FrameSink

	// CatchUpThreshold and MaxPending tune the jitter buffer;
	// non-positive values select the defaults.
	CatchUpThreshold int
	MaxPending       int

	// FrameInterval is the media cadence. Defaults to 20 ms, matching
	// the codec frame duration.
	FrameInterval time.Duration
}

// Controller owns the call lifecycle of one control connection.
//
// All session state is guarded by one mutex. Transport read loops, the
// jitter tick, and the capture cadence are independent goroutines that may
// interleave with signaling arbitrarily; each re-checks call state under
// the lock before acting, since a call may end between the arrival of a
// packet and the processing of its effects.
type Controller struct {
	cfg Config

	mu      sync.Mutex
	session Session

	// Per-call media state, created and destroyed strictly inside the
	// Connected transitions.
	jitter     *media.JitterBuffer
	encoder    *audio.Codec
	decoder    *audio.Codec
	remoteAddr *net.UDPAddr
	stop       chan struct{}

	// sequence numbers outbound audio frames; reset to 0 at call start.
	sequence uint64
}

// NewController wires a controller to its collaborators.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Channel == nil {
		return nil, fmt.Errorf("control channel cannot be nil")
	}
	if cfg.Crypto == nil {
		return nil, fmt.Errorf("crypto session cannot be nil")
	}
	if cfg.Media == nil {
		return nil, fmt.Errorf("media transport cannot be nil")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity provider cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 20 * time.Millisecond
	}

	c := &Controller{cfg: cfg}
	c.session.State = StateIdle
	c.session.LocalPort = cfg.Media.LocalPort()

	return c, nil
}

// Start subscribes to the control channel and begins the handshake.
func (c *Controller) Start() error {
	c.cfg.Channel.Subscribe(c.handleMessage, c.handleChannelError)
	return c.cfg.Channel.Start()
}

// Snapshot returns a copy of the current call session, with live traffic
// counters while a call is connected.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.session
	if c.session.State == StateConnected {
		snapshot.Traffic = c.cfg.Media.Stats()
	}
	return snapshot
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// Initiate starts an outbound call to the named remote user.
func (c *Controller) Initiate(remoteUser string) error {
	localUser, err := c.cfg.Identity.LocalUser()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventInitiate); !ok {
		c.mu.Unlock()
		return ErrAlreadyInCall
	}

	c.session.State = StateCalling
	c.session.CallID = uuid.NewString()
	c.session.LocalUser = localUser
	c.session.RemoteUser = remoteUser

	msg := &signaling.CallRequest{
		Kind:       signaling.TypeCallRequest,
		From:       localUser,
		To:         remoteUser,
		CallID:     c.session.CallID,
		CallerIP:   c.localIP(),
		CallerPort: c.cfg.Media.LocalPort(),
	}
	callID := c.session.CallID
	c.mu.Unlock()

	if err := c.cfg.Channel.Send(msg); err != nil {
		c.mu.Lock()
		c.session.reset()
		c.mu.Unlock()
		c.cfg.Notifier.CallError(fmt.Sprintf("failed to send call request: %v", err))
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Initiate",
		"call_id":     callID,
		"remote_user": remoteUser,
	}).Info("Outbound call started")

	c.cfg.Notifier.OutgoingCallStarted()
	return nil
}

// Accept answers the ringing inbound call and starts media.
func (c *Controller) Accept() error {
	localUser, err := c.cfg.Identity.LocalUser()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventAccept); !ok {
		c.mu.Unlock()
		return ErrNoPendingCall
	}

	c.session.State = StateConnected
	c.session.LocalUser = localUser

	msg := &signaling.CallAccepted{
		Kind:       signaling.TypeCallAccepted,
		From:       localUser,
		CallID:     c.session.CallID,
		CalleeIP:   c.localIP(),
		CalleePort: c.cfg.Media.LocalPort(),
	}
	c.startMediaLocked()
	c.mu.Unlock()

	if err := c.cfg.Channel.Send(msg); err != nil {
		c.teardownCall(fmt.Sprintf("failed to send call accept: %v", err))
		return err
	}

	c.cfg.Notifier.CallConnected()
	return nil
}

// Reject declines the ringing inbound call.
func (c *Controller) Reject() error {
	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventReject); !ok {
		c.mu.Unlock()
		return ErrNoPendingCall
	}

	msg := &signaling.CallRejected{
		Kind:   signaling.TypeCallRejected,
		CallID: c.session.CallID,
		To:     c.session.RemoteUser,
	}
	c.session.reset()
	c.mu.Unlock()

	if err := c.cfg.Channel.Send(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Reject",
			"error":    err.Error(),
		}).Warn("Failed to send call rejection")
	}

	c.cfg.Notifier.CallEnded()
	return nil
}

// Cancel withdraws an outbound call that has not been answered yet.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.session.State != StateCalling {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.mu.Unlock()

	return c.EndCall()
}

// EndCall terminates the call from any non-Idle state and returns to Idle.
// Synchronous: no further transmission happens after it returns.
func (c *Controller) EndCall() error {
	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventEnd); !ok {
		c.mu.Unlock()
		return nil
	}

	msg := &signaling.CallEnd{
		Kind:   signaling.TypeCallEnd,
		From:   c.session.LocalUser,
		CallID: c.session.CallID,
	}
	c.stopMediaLocked()
	c.session.reset()
	c.mu.Unlock()

	if err := c.cfg.Channel.Send(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "EndCall",
			"error":    err.Error(),
		}).Warn("Failed to send call end")
	}

	c.cfg.Notifier.CallEnded()
	return nil
}

// handleMessage dispatches decoded signaling messages from the channel.
func (c *Controller) handleMessage(msg signaling.Message) {
	switch m := msg.(type) {
	case *signaling.Handshake:
		c.handleHandshake(m)
	case *signaling.CallRequest:
		c.handleCallRequest(m)
	case *signaling.CallAccepted:
		c.handleCallAccepted(m)
	case *signaling.CallRejected:
		c.handleCallRejected(m)
	case *signaling.CallEnd:
		c.handleCallEnd(m)
	default:
		logrus.WithFields(logrus.Fields{
			"function":     "handleMessage",
			"message_type": msg.Type(),
		}).Warn("Unhandled signaling message")
	}
}

// handleHandshake completes the key exchange for the control channel.
func (c *Controller) handleHandshake(hs *signaling.Handshake) {
	key, err := hs.PublicKey()
	if err != nil {
		c.cfg.Notifier.CallError(fmt.Sprintf("invalid peer handshake: %v", err))
		c.cfg.Channel.Close()
		return
	}

	if err := c.cfg.Crypto.DeriveSessionKey(key); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleHandshake",
			"error":    err.Error(),
		}).Warn("Session key derivation rejected")
	}
}

// handleCallRequest processes a remote call offer.
func (c *Controller) handleCallRequest(req *signaling.CallRequest) {
	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventCallRequest); !ok {
		// Never overwrite the active session: answer busy instead.
		c.mu.Unlock()
		busy := &signaling.CallRejected{
			Kind:   signaling.TypeCallRejected,
			CallID: req.CallID,
			To:     req.From,
		}
		if err := c.cfg.Channel.Send(busy); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleCallRequest",
				"error":    err.Error(),
			}).Warn("Failed to send busy rejection")
		}
		return
	}

	c.session.State = StateRinging
	c.session.CallID = req.CallID
	c.session.RemoteUser = req.From
	c.session.RemoteAddress = req.CallerIP
	c.session.RemotePort = req.CallerPort
	if localUser, err := c.cfg.Identity.LocalUser(); err == nil {
		c.session.LocalUser = localUser
	}
	from := req.From
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleCallRequest",
		"call_id":  req.CallID,
		"from":     from,
	}).Info("Incoming call")

	c.cfg.Notifier.IncomingCall(from)
}

// handleCallAccepted processes the remote answer to our outbound call.
func (c *Controller) handleCallAccepted(acc *signaling.CallAccepted) {
	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventCallAccepted); !ok {
		c.mu.Unlock()
		return
	}
	if acc.CallID != c.session.CallID {
		logrus.WithFields(logrus.Fields{
			"function": "handleCallAccepted",
			"call_id":  acc.CallID,
			"expected": c.session.CallID,
		}).Warn("Call accept for unknown call, ignoring")
		c.mu.Unlock()
		return
	}

	c.session.State = StateConnected
	c.session.RemoteAddress = acc.CalleeIP
	c.session.RemotePort = acc.CalleePort
	c.startMediaLocked()
	c.mu.Unlock()

	c.cfg.Notifier.CallConnected()
}

// handleCallRejected processes the remote decline of our outbound call.
func (c *Controller) handleCallRejected(rej *signaling.CallRejected) {
	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventCallRejected); !ok {
		c.mu.Unlock()
		return
	}
	if rej.CallID != c.session.CallID {
		c.mu.Unlock()
		return
	}

	remoteUser := c.session.RemoteUser
	c.session.reset()
	c.mu.Unlock()

	c.cfg.Notifier.CallError(fmt.Sprintf("call rejected by %s", remoteUser))
}

// handleCallEnd processes a remote hangup.
func (c *Controller) handleCallEnd(end *signaling.CallEnd) {
	c.mu.Lock()
	if _, ok := lookupTransition(c.session.State, EventEnd); !ok {
		c.mu.Unlock()
		return
	}
	if end.CallID != c.session.CallID {
		c.mu.Unlock()
		return
	}

	c.stopMediaLocked()
	c.session.reset()
	c.mu.Unlock()

	c.cfg.Notifier.CallEnded()
}

// handleChannelError reacts to a fatal control channel failure. Protocol
// errors end the connection; they are never retried.
func (c *Controller) handleChannelError(err error) {
	c.teardownCall(fmt.Sprintf("control channel failed: %v", err))
}

// teardownCall force-ends any active call and surfaces one error
// notification.
func (c *Controller) teardownCall(reason string) {
	c.mu.Lock()
	active := c.session.State != StateIdle
	if active {
		c.stopMediaLocked()
		c.session.reset()
	}
	c.mu.Unlock()

	if active {
		c.cfg.Notifier.CallError(reason)
	}
}

// startMediaLocked arms the media path for a connected call. Caller holds
// the lock and has already populated the remote endpoint.
func (c *Controller) startMediaLocked() {
	c.jitter = media.NewJitterBuffer(c.cfg.CatchUpThreshold, c.cfg.MaxPending)
	c.encoder = audio.NewCodec()
	c.decoder = audio.NewCodec()
	atomic.StoreUint64(&c.sequence, 0)
	c.remoteAddr = &net.UDPAddr{
		IP:   net.ParseIP(c.session.RemoteAddress),
		Port: c.session.RemotePort,
	}
	c.stop = make(chan struct{})
	c.session.StartedAt = time.Now()
	c.session.DurationSeconds = 0

	c.cfg.Media.ResetStats()

	buffer := c.jitter
	c.cfg.Media.SetSink(func(sequence uint64, payload []byte) {
		buffer.Insert(sequence, payload)
	})

	go c.captureLoop(c.stop, c.encoder, c.remoteAddr)
	go c.playbackLoop(c.stop, c.jitter, c.decoder)
	go c.durationLoop(c.stop)

	logrus.WithFields(logrus.Fields{
		"function":    "startMediaLocked",
		"call_id":     c.session.CallID,
		"remote_addr": c.remoteAddr,
		"local_port":  c.session.LocalPort,
	}).Info("Media path started")
}

// stopMediaLocked tears the media path down. Caller holds the lock.
// In-flight datagrams delivered after this are dropped by the transport.
func (c *Controller) stopMediaLocked() {
	if c.stop == nil {
		return
	}

	close(c.stop)
	c.stop = nil

	c.cfg.Media.SetSink(nil)
	c.session.Traffic = c.cfg.Media.Stats()

	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	c.jitter = nil
	c.encoder = nil
	c.decoder = nil
	c.remoteAddr = nil

	logrus.WithFields(logrus.Fields{
		"function": "stopMediaLocked",
		"call_id":  c.session.CallID,
	}).Info("Media path stopped")
}

// captureLoop reads capture frames on the fixed cadence, encodes them, and
// transmits one datagram per frame.
func (c *Controller) captureLoop(stop chan struct{}, codec *audio.Codec, dst *net.UDPAddr) {
	if c.cfg.Source == nil {
		return
	}

	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		pcm, err := c.cfg.Source.ReadFrame()
		if err != nil {
			continue
		}

		data, err := codec.Encode(pcm)
		if err != nil {
			// One bad frame must not end the call; drop it.
			logrus.WithFields(logrus.Fields{
				"function": "captureLoop",
				"error":    err.Error(),
			}).Debug("Dropping unencodable capture frame")
			continue
		}

		sequence := atomic.AddUint64(&c.sequence, 1) - 1
		_ = c.cfg.Media.SendFrame(sequence, data, dst)
	}
}

// playbackLoop drives the jitter buffer on the fixed cadence; this is the
// only place received audio is decoded and played.
func (c *Controller) playbackLoop(stop chan struct{}, buffer *media.JitterBuffer, codec *audio.Codec) {
	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		buffer.Tick(func(sequence uint64, payload []byte) {
			pcm, err := codec.Decode(payload)
			if err != nil {
				return
			}
			if c.cfg.Sink == nil {
				return
			}
			if err := c.cfg.Sink.WriteFrame(pcm); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "playbackLoop",
					"sequence": sequence,
					"error":    err.Error(),
				}).Debug("Playback sink rejected frame")
			}
		})
	}
}

// durationLoop reports elapsed call time to the notifier once per second.
func (c *Controller) durationLoop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	seconds := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		seconds++
		c.mu.Lock()
		c.session.DurationSeconds = seconds
		c.mu.Unlock()

		c.cfg.Notifier.DurationTick(seconds)
	}
}

// localIP extracts the host of the control connection's local address for
// signaling payloads.
func (c *Controller) localIP() string {
	host, _, err := net.SplitHostPort(c.cfg.Channel.LocalAddr().String())
	if err != nil || host == "" || host == "::" || host == "0.0.0.0" {
		return "127.0.0.1"
	}
	return host
}

// Close ends any active call and shuts the control channel down.
func (c *Controller) Close() error {
	c.EndCall()
	return c.cfg.Channel.Close()
}
