package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"iot-gateway/common"
	"iot-gateway/mqtt"
	"iot-gateway/relay"
)

// command is one parsed relayctl subcommand. prepare runs before the session
// connects and returns the inbound handler, or nil when the command listens to nothing.
type command interface {
	subscriptions(topics relay.Topics) []string
	prepare(topics relay.Topics, out io.Writer) mqtt.MessageHandler
	execute(ctx context.Context, session *mqtt.Session, topics relay.Topics, out io.Writer) error
}

func parseCommand(args []string) (command, error) {
	switch args[0] {
	case "discover":
		fs := flag.NewFlagSet("discover", flag.ContinueOnError)
		timeout := fs.DurationP("timeout", "t", 10*time.Second, "how long to listen")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		return &discoverCmd{timeout: *timeout}, nil

	case "control":
		if len(args) != 4 {
			return nil, fmt.Errorf("usage: control <deviceId> <relay> on|off")
		}
		index, err := strconv.Atoi(args[2])
		if err != nil || index < 0 {
			return nil, fmt.Errorf("invalid relay index %q", args[2])
		}
		state, err := parseState(args[3])
		if err != nil {
			return nil, err
		}
		return &controlCmd{deviceID: args[1], index: index, state: state}, nil

	case "monitor":
		fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
		duration := fs.DurationP("duration", "d", 30*time.Second, "how long to watch")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if fs.NArg() != 1 {
			return nil, fmt.Errorf("usage: monitor <deviceId> [--duration 30s]")
		}
		return &monitorCmd{deviceID: fs.Arg(0), duration: *duration}, nil
	}

	return nil, fmt.Errorf("unknown command %q", args[0])
}

func parseState(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q, want on or off", s)
}

type discoverCmd struct {
	timeout   time.Duration
	discovery *relay.Discovery
}

func (c *discoverCmd) subscriptions(topics relay.Topics) []string {
	return []string{topics.StatusWildcard()}
}

func (c *discoverCmd) prepare(topics relay.Topics, _ io.Writer) mqtt.MessageHandler {
	c.discovery = relay.NewDiscovery(topics)
	discovery := c.discovery
	return func(msg common.BrokerMessage) error {
		_, err := discovery.Handle(msg)
		return err
	}
}

func (c *discoverCmd) execute(ctx context.Context, _ *mqtt.Session, topics relay.Topics, out io.Writer) error {
	if c.discovery == nil {
		c.prepare(topics, out)
	}

	fmt.Fprintf(out, "Listening for relay devices for %v...\n", c.timeout)
	wait(ctx, c.timeout)

	printDevices(out, c.discovery.Devices())
	return nil
}

type controlCmd struct {
	deviceID string
	index    int
	state    bool
}

func (c *controlCmd) subscriptions(relay.Topics) []string {
	return nil
}

func (c *controlCmd) prepare(relay.Topics, io.Writer) mqtt.MessageHandler {
	return nil
}

func (c *controlCmd) execute(_ context.Context, session *mqtt.Session, topics relay.Topics, out io.Writer) error {
	topic, payload, err := topics.EncodeControl(c.deviceID, c.index, c.state)
	if err != nil {
		return err
	}
	if err := session.Publish(topic, payload); err != nil {
		return err
	}
	fmt.Fprintf(out, "Sent: device %s relay %d -> %s\n", c.deviceID, c.index, onOff(c.state))
	return nil
}

type monitorCmd struct {
	deviceID string
	duration time.Duration
}

func (c *monitorCmd) subscriptions(topics relay.Topics) []string {
	return []string{topics.Status(c.deviceID)}
}

func (c *monitorCmd) prepare(_ relay.Topics, out io.Writer) mqtt.MessageHandler {
	var mu sync.Mutex
	return func(msg common.BrokerMessage) error {
		status, err := relay.DecodeStatusFrom(c.deviceID, msg.Payload)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, formatStatus(time.Now(), status))
		return nil
	}
}

func (c *monitorCmd) execute(ctx context.Context, _ *mqtt.Session, _ relay.Topics, out io.Writer) error {
	fmt.Fprintf(out, "Monitoring %s for %v...\n", c.deviceID, c.duration)
	wait(ctx, c.duration)
	return nil
}

func wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func onOff(state bool) string {
	if state {
		return "ON"
	}
	return "OFF"
}

// formatStatus renders one status as a single line, e.g.
// "12:00:00 AA:BB:CC rssi=-60 [0:ON 1:OFF]".
func formatStatus(at time.Time, status *relay.DeviceStatus) string {
	states := make([]string, 0, len(status.Relays))
	for _, r := range status.Relays {
		states = append(states, fmt.Sprintf("%d:%s", r.Index, onOff(r.State)))
	}
	return fmt.Sprintf("%s %s rssi=%d [%s]", at.Format("15:04:05"), status.DeviceID, status.RSSI, strings.Join(states, " "))
}

func printDevices(out io.Writer, devices []relay.Observed) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tTYPE\tOUTPUTS\tON\tRSSI")
	for _, d := range devices {
		s := d.Status
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", s.DeviceID, s.DeviceType, len(s.Relays), s.OnCount(), s.RSSI)
	}
	tw.Flush()
}
