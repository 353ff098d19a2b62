// Command console is a terminal device for the assistant server. It
// authenticates, connects to the websocket hub and turns typed lines into
// device messages.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/api"
)

const audioChunkSize = 3200 // 100ms of 16kHz LINEAR16

const help = `Type a sentence to send it as a transcript, or one of:
  /listen [prompt]          start a turn, optionally asking prompt first
  /audio <bytes>            stream silence of the given size, then end speech
  /battery <level> <scale>  report the battery reading
  /loc <lat> <lng>          report a location fix
  /apps Label=package,...   report the installed apps
  /quit`

func main() {
	server := flag.String("server", "localhost:8080", "server host:port")
	serial := flag.String("serial", "CONSOLE001", "device serial number")
	secret := flag.String("secret", "", "device secret key")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	token, deviceID, err := authenticateDevice(*server, *serial, *secret)
	if err != nil {
		logger.Fatal("Failed to authenticate device", zap.Error(err))
	}
	logger.Info("Authenticated", zap.String("deviceID", deviceID))

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws"}
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		logger.Fatal("Failed to connect", zap.String("url", u.String()), zap.Error(err))
	}
	defer conn.Close()

	done := make(chan struct{})
	go readMessages(conn, logger, done)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	fmt.Println(help)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			closeConnection(conn, done)
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				closeConnection(conn, done)
				return
			}
			if err := handleLine(conn, line); err != nil {
				logger.Warn("Command failed", zap.Error(err))
			}
		}
	}
}

func authenticateDevice(server, serial, secret string) (string, string, error) {
	body, err := json.Marshal(api.DeviceAuthRequest{SerialNumber: serial, SecretKey: secret})
	if err != nil {
		return "", "", err
	}

	resp, err := http.Post("http://"+server+"/api/v1/device/auth", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("authentication failed: %s", string(data))
	}

	var authResp api.DeviceAuthResponse
	if err := json.Unmarshal(data, &authResp); err != nil {
		return "", "", err
	}
	return authResp.Token, authResp.DeviceID, nil
}

func readMessages(conn *websocket.Conn, logger *zap.Logger, done chan struct{}) {
	defer close(done)

	audioBytes := 0
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Info("Connection closed", zap.Error(err))
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			audioBytes += len(message)
			continue
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("Unparsable message", zap.ByteString("message", message))
			continue
		}

		switch msg["type"] {
		case "turn_event":
			event, _ := msg["event"].(map[string]interface{})
			if event["type"] == "turn_completed" || event["type"] == "turn_failed" {
				fmt.Printf("<< %v (%d bytes of audio received)\n", event["type"], audioBytes)
				audioBytes = 0
				continue
			}
			fmt.Printf("<< %v %v\n", event["type"], event["data"])
		case "command":
			fmt.Printf("<< command %v\n", msg["command"])
		case "error":
			fmt.Printf("<< error %v: %v %v\n", msg["error_code"], msg["message"], msg["details"])
		default:
			fmt.Printf("<< %s\n", message)
		}
	}
}

func handleLine(conn *websocket.Conn, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	fields := strings.Fields(rest)

	switch command {
	case "/listen":
		return sendMessage(conn, "listen_request", map[string]interface{}{"prompt": rest})

	case "/audio":
		size, err := strconv.Atoi(rest)
		if err != nil || size < 0 {
			return fmt.Errorf("usage: /audio <bytes>")
		}
		for sent := 0; sent < size; sent += audioChunkSize {
			chunk := make([]byte, min(audioChunkSize, size-sent))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return err
			}
		}
		return sendMessage(conn, "listening_end", nil)

	case "/battery":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /battery <level> <scale>")
		}
		level, err1 := strconv.Atoi(fields[0])
		scale, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("battery level and scale must be integers")
		}
		return sendMessage(conn, "battery_status", map[string]interface{}{"raw_level": level, "scale": scale})

	case "/loc":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /loc <lat> <lng>")
		}
		lat, err1 := strconv.ParseFloat(fields[0], 64)
		lng, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("coordinates must be numbers")
		}
		return sendMessage(conn, "location_update", map[string]interface{}{
			"lat":      lat,
			"lng":      lng,
			"fix_time": time.Now().UnixMilli(),
		})

	case "/apps":
		var apps []entities.App
		for _, pair := range strings.Split(rest, ",") {
			label, pkg, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("usage: /apps Label=package,...")
			}
			apps = append(apps, entities.App{Label: strings.TrimSpace(label), Package: strings.TrimSpace(pkg)})
		}
		return sendMessage(conn, "installed_apps", map[string]interface{}{"apps": apps})

	case "/help":
		fmt.Println(help)
		return nil

	default:
		return sendMessage(conn, "transcript", map[string]interface{}{"text": line})
	}
}

func sendMessage(conn *websocket.Conn, messageType string, fields map[string]interface{}) error {
	msg := map[string]interface{}{
		"type":      messageType,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range fields {
		msg[k] = v
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// closeConnection sends a close message and waits (with timeout) for the
// server to close the connection
func closeConnection(conn *websocket.Conn, done chan struct{}) {
	err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
