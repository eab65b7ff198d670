// Command amqprobe dials a broker, performs the protocol header handshake,
// and reports the first frame the broker sends back. It is a connectivity
// diagnostic for the transport layer, not a protocol client.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/amqwire/pkg/protocol"
	"github.com/omochice/amqwire/pkg/transport"
)

func main() {
	host := flag.String("host", "localhost", "Broker hostname")
	port := flag.Int("port", 0, "Broker port (defaults to 5672, or 5671 with -tls)")
	family := flag.String("family", "any", "Address family: any, ipv4, ipv6")
	useTLS := flag.Bool("tls", false, "Upgrade the connection with TLS")
	wsURL := flag.String("ws", "", "Dial a WebSocket endpoint instead of host/port")
	timeout := flag.Duration("timeout", 10*time.Second, "Connect and first-frame timeout")
	verbose := flag.Bool("verbose", false, "Log transport events to stderr")
	flag.Parse()

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	cfg := transport.DefaultConfig(*host)
	cfg.ConnectTimeout = *timeout
	cfg.Logger = logger

	switch *family {
	case "any":
		cfg.Family = transport.AddressFamilyAny
	case "ipv4":
		cfg.Family = transport.AddressFamilyIPv4
	case "ipv6":
		cfg.Family = transport.AddressFamilyIPv6
	default:
		log.Fatalf("Unknown address family %q", *family)
	}

	if *useTLS {
		cfg.TLS = &tls.Config{ServerName: *host}
		cfg.Port = transport.DefaultTLSPort
	}
	if *port != 0 {
		cfg.Port = *port
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		conn *transport.Conn
		err  error
	)
	if *wsURL != "" {
		nc, wsErr := transport.DialWebSocket(ctx, *wsURL)
		if wsErr != nil {
			log.Fatalf("Failed to dial websocket: %v", wsErr)
		}
		conn, err = transport.NewConn(nc, cfg)
	} else {
		conn, err = transport.Dial(ctx, cfg)
	}
	if err != nil {
		var connErr *transport.ConnectionError
		if errors.As(err, &connErr) {
			log.Fatalf("Connection failed: %v", connErr.Err)
		}
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected: %s -> %s", conn.LocalAddr(), conn.RemoteAddr())

	if err := conn.SendProtocolHeader(); err != nil {
		log.Fatalf("Failed to send protocol header: %v", err)
	}

	if err := conn.SetReadTimeout(*timeout); err != nil {
		log.Fatalf("Failed to set read timeout: %v", err)
	}

	frame, err := conn.ReadFrame()
	if err != nil {
		log.Fatalf("Broker sent no frame: %v", err)
	}

	fmt.Printf("First frame: type=%s channel=%d payload=%d bytes\n",
		protocol.TypeName(frame.Type), frame.Channel, len(frame.Payload))
}
