package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

type TranslationRequest struct {
	Text    string `json:"text"`
	SrcLang string `json:"src_lang"`
	TgtLang string `json:"tgt_lang"`
}

type TranslationResponse struct {
	Text     string  `json:"text"`
	Provider string  `json:"provider"`
	Quality  float64 `json:"quality"`
}

func translateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TranslationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request JSON", http.StatusBadRequest)
		return
	}

	log.Printf("🌐 TRANSLATION REQUEST RECEIVED:")
	log.Printf("  Source Lang: %s", req.SrcLang)
	log.Printf("  Target Lang: %s", req.TgtLang)
	log.Printf("  Text: %q", req.Text)

	// Simulate processing time
	time.Sleep(150 * time.Millisecond)

	// Create fake translation response
	response := TranslationResponse{
		Text:     fmt.Sprintf("[%s] %s", req.TgtLang, req.Text),
		Provider: "test-stub",
		Quality:  0.92,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ TRANSLATION RESPONSE SENT: %q", response.Text)
	log.Println("---")
}

func main() {
	http.HandleFunc("/translate", translateHandler)

	port := ":9100"
	log.Printf("🚀 Test Translation Server starting on port %s", port)
	log.Printf("📡 Endpoint: http://localhost%s/translate", port)
	log.Println("💡 Update your config to use: http://localhost:9100/translate")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
