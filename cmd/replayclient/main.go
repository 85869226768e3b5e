// Replay client for local development. Connects to the service websocket
// and replays simulated utterances as progressive word-level patches, the
// way a streaming recognizer would emit them, then prints what the
// service broadcasts back.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// SimulatedUtterance is one utterance with its progressive interim stages.
// Each stage is the full word list as the recognizer would re-emit it.
type SimulatedUtterance struct {
	Stages [][]string
	Final  []string
}

var defaultUtterances = []SimulatedUtterance{
	{
		Stages: [][]string{{"I"}, {"I", "want"}, {"I", "want", "to", "cancel"}},
		Final:  []string{"I", "want", "to", "cancel", "my", "subscription"},
	},
	{
		Stages: [][]string{{"Yes"}, {"Yes", "please"}},
		Final:  []string{"Yes", "please", "go", "ahead"},
	},
	{
		Stages: [][]string{{"Can"}, {"Can", "you", "help"}},
		Final:  []string{"Can", "you", "help", "me", "with", "my", "account"},
	},
	{
		Stages: [][]string{{"Thank"}, {"Thank", "you"}},
		Final:  []string{"Thank", "you", "very", "much"},
	},
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func send(conn *websocket.Conn, msgType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(envelope{Type: msgType, Payload: body}); err != nil {
		log.Fatalf("write %s: %v", msgType, err)
	}
}

func words(segmentID string, offset float64, texts []string) []map[string]any {
	out := make([]map[string]any, 0, len(texts))
	for i, text := range texts {
		t0 := offset + float64(i)*0.4
		out = append(out, map[string]any{
			"wid":  fmt.Sprintf("%s_w%d", segmentID, i),
			"text": text,
			"t0":   t0,
			"t1":   t0 + 0.35,
		})
	}
	return out
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "Service websocket URL")
	sessionID := flag.String("session", "replay-"+time.Now().Format("150405"), "Session ID")
	interval := flag.Duration("interval", 300*time.Millisecond, "Delay between interim stages")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", *addr)

	// Print everything the service broadcasts back
	go func() {
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			log.Printf("<- %s %s", env.Type, string(env.Payload))
		}
	}()

	send(conn, "start_session", map[string]string{"sessionId": *sessionID})
	time.Sleep(*interval)

	offset := 0.0
	for i, utt := range defaultUtterances {
		segmentID := fmt.Sprintf("seg_%d", i)

		for _, stage := range utt.Stages {
			send(conn, "transcript_patch", map[string]any{
				"sessionId": *sessionID,
				"segmentId": segmentID,
				"isFinal":   false,
				"words":     words(segmentID, offset, stage),
			})
			time.Sleep(*interval)
		}

		send(conn, "transcript_patch", map[string]any{
			"sessionId": *sessionID,
			"segmentId": segmentID,
			"isFinal":   true,
			"words":     words(segmentID, offset, utt.Final),
		})
		log.Printf("-> finalized %s (%d words)", segmentID, len(utt.Final))

		offset += float64(len(utt.Final)) * 0.4
		time.Sleep(*interval)
	}

	send(conn, "finalize", map[string]string{"sessionId": *sessionID})
	time.Sleep(time.Second)
	log.Printf("Replay complete: session=%s", *sessionID)
}
