// navwatch - tail a Kibo dashboard's running log or status stream
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type logEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	RunID   string    `json:"run_id"`
}

type statusEvent struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Step     int       `json:"step"`
	Total    int       `json:"total"`
	Progress float64   `json:"progress"`
	Phase    string    `json:"phase"`
	Reason   string    `json:"reason"`
}

func main() {
	host := flag.String("host", "localhost:8080", "Dashboard host:port")
	status := flag.Bool("status", false, "Tail status events instead of the log")
	flag.Parse()

	stream := "/ws/logs"
	if *status {
		stream = "/ws/status"
	}
	u := url.URL{Scheme: "ws", Host: *host, Path: stream}

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Printf("❌ Failed to connect to %s: %v\n", u.String(), err)
		os.Exit(1)
	}
	defer ws.Close()
	fmt.Printf("📡 Watching %s (Ctrl+C to exit)\n", u.String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !strings.Contains(err.Error(), "use of closed") {
				fmt.Printf("❌ %v\n", err)
				os.Exit(1)
			}
			return
		}
		if *status {
			printStatus(data)
		} else {
			printLog(data)
		}
	}
}

func printLog(data []byte) {
	var e logEntry
	if err := json.Unmarshal(data, &e); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%s %-5s %s\n", e.Time.Local().Format("15:04:05"), strings.ToUpper(e.Level), e.Message)
}

func printStatus(data []byte) {
	var e statusEvent
	if err := json.Unmarshal(data, &e); err != nil {
		fmt.Println(string(data))
		return
	}
	line := fmt.Sprintf("%s %-16s", e.Time.Local().Format("15:04:05"), e.Type)
	if e.Total > 0 {
		line += fmt.Sprintf(" step %d/%d %3.0f%%", e.Step+1, e.Total, e.Progress*100)
	}
	if e.Phase != "" {
		line += " [" + e.Phase + "]"
	}
	if e.Message != "" {
		line += " " + e.Message
	}
	if e.Reason != "" {
		line += " (" + e.Reason + ")"
	}
	fmt.Println(line)
}
