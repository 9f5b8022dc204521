// Command relayctl discovers, switches and watches relay devices over MQTT.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"iot-gateway/logging"
	"iot-gateway/mqtt"
	"iot-gateway/relay"
)

const usage = `Usage: relayctl [global flags] <command> [args]

Commands:
  discover [--timeout 10s]             list devices that publish a status
  control <deviceId> <relay> on|off    switch one relay
  monitor <deviceId> [--duration 30s]  print status updates of one device

Global flags:
`

// options are the flags shared by every command.
type options struct {
	broker    string
	username  string
	password  string
	namespace string
	verbose   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "relayctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, rest, err := parseGlobal(args, out)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("missing command, see --help")
	}

	cmd, err := parseCommand(rest)
	if err != nil {
		return err
	}

	topics := relay.NewTopics(opts.namespace)
	session := newSession(opts, cmd, topics, out)
	if err := session.Connect(); err != nil {
		return err
	}
	defer session.Close()

	return cmd.execute(ctx, session, topics, out)
}

func parseGlobal(args []string, out io.Writer) (options, []string, error) {
	var opts options

	fs := flag.NewFlagSet("relayctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	fs.StringVarP(&opts.broker, "broker", "b", "tcp://localhost:1883", "MQTT broker URL")
	fs.StringVarP(&opts.username, "username", "u", "", "MQTT username")
	fs.StringVarP(&opts.password, "password", "p", "", "MQTT password")
	fs.StringVarP(&opts.namespace, "namespace", "n", relay.DefaultNamespace, "relay topic namespace")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log connection details")

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs.Args(), nil
}

// newSession builds an unconnected session with the command's handler already
// installed, so retained messages delivered on subscribe are not lost.
func newSession(opts options, cmd command, topics relay.Topics, out io.Writer) *mqtt.Session {
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger := logging.Component(logging.New(logging.Config{Level: level, Output: "stderr"}), "relayctl")

	cfg := mqtt.DefaultConfig()
	cfg.Broker = opts.broker
	cfg.Username = opts.username
	cfg.Password = opts.password
	cfg.ClientID = "relayctl-" + uuid.NewString()[:8]
	cfg.AutoReconnect = false
	cfg.ConnectTimeout = 10 * time.Second

	session := mqtt.NewSession(cfg, cmd.subscriptions(topics), logger)
	if handler := cmd.prepare(topics, out); handler != nil {
		session.OnMessage(handler)
	}
	return session
}
