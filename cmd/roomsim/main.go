// roomsim is a single-connection room bridge simulator for exercising the
// agent end to end without real room infrastructure. It serves the bridge
// websocket protocol: on connect it sends the room handshake, announces one
// simulated participant with an audio track, streams a WAV file as timed
// audio frames, and prints every data message the agent publishes back.
package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time capture.
// At 16kHz 16-bit mono = 32000 bytes/second; 100ms chunks = 3200 bytes.
const chunkIntervalMs = 100

type envelope struct {
	Type string `json:"type"`

	Room         string            `json:"room,omitempty"`
	Participants []participantInfo `json:"participants,omitempty"`

	Participant *participantInfo `json:"participant,omitempty"`
	Track       *trackInfo       `json:"track,omitempty"`

	TrackSID   string `json:"track_sid,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Data       []byte `json:"data,omitempty"`

	Topic    string          `json:"topic,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Reliable bool            `json:"reliable,omitempty"`
}

type participantInfo struct {
	SID      string      `json:"sid"`
	Identity string      `json:"identity"`
	Tracks   []trackInfo `json:"tracks,omitempty"`
}

type trackInfo struct {
	SID  string `json:"sid"`
	Kind string `json:"kind"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":7880", "Listen address for the bridge websocket")
	roomName := flag.String("room", "sim-room", "Room name sent in the handshake")
	identity := flag.String("identity", "sim-speaker", "Simulated participant identity")
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	flag.Parse()

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Upgrade failed: %v", err)
			return
		}
		log.Printf("Agent connected from %s", r.RemoteAddr)
		serveSession(conn, *roomName, *identity, *audioFile)
	})

	log.Printf("Room simulator listening on %s (room=%s audio=%s)", *addr, *roomName, *audioFile)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func serveSession(conn *websocket.Conn, roomName, identity, audioFile string) {
	defer conn.Close()

	f, sampleRate, err := openWAV(audioFile)
	if err != nil {
		log.Printf("Audio file error: %v", err)
		return
	}
	defer f.Close()

	writes := make(chan envelope, 16)
	done := make(chan struct{})

	// Single writer; the reader goroutine only prints what the agent sends.
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Type == "publish_data" {
				log.Printf("Agent published: %s", env.Payload)
			}
		}
	}()
	go func() {
		var failed bool
		for env := range writes {
			if failed {
				continue
			}
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("Write failed: %v", err)
				failed = true
			}
		}
	}()
	defer close(writes)

	participant := participantInfo{SID: "PA_sim1", Identity: identity}
	track := trackInfo{SID: "TR_sim1", Kind: "audio"}

	writes <- envelope{Type: "room", Room: roomName}
	writes <- envelope{Type: "participant_connected", Participant: &participant}
	writes <- envelope{Type: "track_subscribed", Participant: &participant, Track: &track}

	// 100ms of 16-bit mono at the file's sample rate.
	chunkSize := int(sampleRate) * 2 / 10
	chunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	start := time.Now()

	for {
		select {
		case <-done:
			log.Println("Agent disconnected mid-stream")
			return
		default:
		}

		n, err := f.Read(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Failed to read audio: %v", err)
			return
		}

		chunkNum++
		totalBytes += int64(n)

		data := make([]byte, n)
		copy(data, chunk[:n])
		writes <- envelope{
			Type:       "audio_frame",
			TrackSID:   track.SID,
			SampleRate: int(sampleRate),
			Channels:   1,
			Data:       data,
		}

		if chunkNum%50 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(start))
	writes <- envelope{Type: "track_ended", TrackSID: track.SID}

	// Keep the connection open so the agent can publish final transcripts
	// and heartbeats until it disconnects.
	<-done
	log.Println("Agent disconnected")
}

// openWAV opens the file, validates the PCM header, and positions the reader
// at the start of the audio data.
func openWAV(path string) (*os.File, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, 0, err
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		f.Close()
		return nil, 0, errNotWAV
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		f.Close()
		return nil, 0, errNotPCM
	}
	if numChannels != 1 {
		log.Printf("Warning: %d channels, expected mono", numChannels)
	}

	return f, sampleRate, nil
}

var (
	errNotWAV = errors.New("not a valid WAV file")
	errNotPCM = errors.New("only PCM format supported")
)
