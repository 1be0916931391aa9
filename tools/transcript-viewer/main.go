// Transcript Viewer - displays stored room transcripts
// Reads the agent's per-room JSON files, or follows the Kafka mirror topics
// for a live view.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// TranscriptRecord matches the agent's stored file format
type TranscriptRecord struct {
	Timestamp   string `json:"timestamp"`
	Participant string `json:"participant"`
	Text        string `json:"text"`
	Room        string `json:"room"`
}

// MirrorEvent matches the agent's Kafka mirror payload
type MirrorEvent struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	IsFinal     bool     `json:"isFinal"`
	Participant string   `json:"participant"`
	Timestamp   string   `json:"timestamp"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func main() {
	dir := flag.String("dir", "transcripts", "Transcript directory")
	roomFilter := flag.String("room", "", "Only show this room")
	follow := flag.Bool("follow", false, "Follow the Kafka mirror topics instead of reading files")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated, follow mode)")
	topicInterim := flag.String("topic-interim", "room.transcript.interim", "Interim transcript topic (follow mode)")
	topicFinal := flag.String("topic-final", "room.transcript.final", "Final transcript topic (follow mode)")
	flag.Parse()

	if *follow {
		followMirror(*brokers, *topicInterim, *topicFinal)
		return
	}
	printFiles(*dir, *roomFilter)
}

func printFiles(dir, roomFilter string) {
	pattern := filepath.Join(dir, "*.json")
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		log.Fatalf("No transcript files in %s", dir)
	}
	sort.Strings(files)

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			log.Printf("Skipping %s: %v", file, err)
			continue
		}

		var records []TranscriptRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			log.Printf("Skipping %s: %v", file, err)
			continue
		}
		if len(records) == 0 {
			continue
		}
		if roomFilter != "" && records[0].Room != roomFilter {
			continue
		}

		fmt.Printf("=== %s (%d entries) ===\n", filepath.Base(file), len(records))
		for _, rec := range records {
			fmt.Printf("[%s] %s: %s\n", rec.Timestamp, rec.Participant, rec.Text)
		}
		fmt.Println()
	}
}

func followMirror(brokers, topicInterim, topicFinal string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consume(ctx, brokers, topicInterim)
	consume(ctx, brokers, topicFinal)
}

func consume(ctx context.Context, brokers, topic string) {
	// Partition reader without a consumer group (works through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	log.Printf("Following Kafka topic: %s partition 0", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		var event MirrorEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}

		marker := " "
		if event.IsFinal {
			marker = "*"
		}
		fmt.Printf("%s [%s] %s: %s\n", marker, event.Timestamp, event.Participant, truncate(event.Text, 120))
	}
}
