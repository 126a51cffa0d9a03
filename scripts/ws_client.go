// Package main runs a demo WebSocket client for checkout session events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a checkout session
	body := []byte(`{"shopId":"demo-shop","checkoutId":"chk_demo","cartLines":[{"merchandise":{"id":"gid://shopify/ProductVariant/1"}}]}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/checkout/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shop-Id", "demo-shop")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatal(err)
	}
	if created.SessionID == "" {
		log.Fatal("no session returned")
	}
	sessionID := created.SessionID
	log.Printf("Session ID: %s", sessionID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/graphql/ws"}
	hdr := http.Header{}
	hdr.Set("X-Shop-Id", "demo-shop")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to checkoutEvents
	payload := map[string]any{
		"query":     "subscription($sessionId: ID!) { checkoutEvents(sessionId: $sessionId) }",
		"variables": map[string]any{"sessionId": sessionID},
	}
	pl, _ := json.Marshal(payload)
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger an event by posting a shipping address
	time.Sleep(500 * time.Millisecond)
	addrBody := []byte(`{"shippingDestination":{"countryCode":"US"}}`)
	addrReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/checkout/sessions/%s/shipping-address", base, sessionID), bytes.NewReader(addrBody))
	addrReq.Header.Set("Content-Type", "application/json")
	addrReq.Header.Set("X-Shop-Id", "demo-shop")
	addrReq.Header.Set("X-Role", "admin")
	_, _ = http.DefaultClient.Do(addrReq)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
