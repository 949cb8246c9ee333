// Standalone smoke client: registers an account, uploads a synthetic
// before/after pair, and waits for the resulting alert on the websocket
// stream. Run against a live server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BackendURL = "http://localhost:8080"
	WSUrl      = "ws://localhost:8080/ws/alerts"
	TestEmail  = "test@example.com"
	TestPass   = "Test123456"
)

func testHealth() error {
	fmt.Println("\n[TEST] Testing /api/health...")
	resp, err := http.Get(BackendURL + "/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Health check: %s\n", string(body))
	return nil
}

func testRegister() error {
	fmt.Println("\n[TEST] Testing /api/auth/register...")

	data := map[string]string{
		"email":    TestEmail,
		"username": "testuser",
		"password": TestPass,
	}

	jsonData, _ := json.Marshal(data)
	resp, err := http.Post(BackendURL+"/api/auth/register", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("registration failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusCreated:
		fmt.Printf("Registration successful: %s\n", string(body))
	case http.StatusConflict:
		fmt.Println("User already exists (this is OK)")
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// makePNG renders a solid image with a colored square block in the middle.
func makePNG(base, block color.RGBA, blockSize int) []byte {
	const size = 64
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, base)
		}
	}
	start := (size - blockSize) / 2
	for y := start; y < start+blockSize; y++ {
		for x := start; x < start+blockSize; x++ {
			img.Set(x, y, block)
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func testDetection() (string, error) {
	fmt.Println("\n[TEST] Testing POST /api/detections...")

	gray := color.RGBA{120, 120, 120, 255}
	before := makePNG(gray, gray, 16)
	after := makePNG(gray, color.RGBA{220, 60, 40, 255}, 16)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, _ := mw.CreateFormFile("before", "before.png")
	fw.Write(before)
	fw, _ = mw.CreateFormFile("after", "after.png")
	fw.Write(after)
	mw.WriteField("lat", "13.0827")
	mw.WriteField("lng", "80.2707")
	mw.WriteField("notes", "smoke test pair")
	mw.Close()

	resp, err := http.Post(BackendURL+"/api/detections", mw.FormDataContentType(), &body)
	if err != nil {
		return "", fmt.Errorf("detection request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var record struct {
		ID            string `json:"id"`
		Severity      int    `json:"severity"`
		SeverityLevel string `json:"severity_level"`
		ChangedPixels int    `json:"changed_pixels"`
		TotalPixels   int    `json:"total_pixels"`
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", fmt.Errorf("decode detection: %v", err)
	}

	fmt.Printf("Detection created: id=%s severity=%d (%s), %d/%d pixels changed\n",
		record.ID, record.Severity, record.SeverityLevel,
		record.ChangedPixels, record.TotalPixels)
	return record.ID, nil
}

func listenAlerts(ready chan<- struct{}, got chan<- string) {
	conn, _, err := websocket.DefaultDialer.Dial(WSUrl, nil)
	if err != nil {
		log.Printf("websocket dial failed: %v", err)
		close(ready)
		return
	}
	defer conn.Close()
	close(ready)

	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		fmt.Printf("WS message: %s %s\n", msg.Type, string(msg.Payload))
		if msg.Type == "ALERT" {
			got <- string(msg.Payload)
			return
		}
	}
}

func main() {
	fmt.Println("SandGuard smoke client")

	if err := testHealth(); err != nil {
		log.Fatal(err)
	}
	if err := testRegister(); err != nil {
		log.Fatal(err)
	}

	ready := make(chan struct{})
	got := make(chan string, 1)
	go listenAlerts(ready, got)
	<-ready

	id, err := testDetection()
	if err != nil {
		log.Fatal(err)
	}

	select {
	case alert := <-got:
		fmt.Printf("\nAlert received for detection: %s\n", alert)
	case <-time.After(10 * time.Second):
		fmt.Println("\nNo alert received within 10s (severity below threshold?)")
	}

	fmt.Printf("\nReport URL: %s/api/detections/%s/report\n", BackendURL, id)
	os.Exit(0)
}
