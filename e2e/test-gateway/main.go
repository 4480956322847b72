package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("Usage: %s <token> <function> [server-addr] [body]", os.Args[0])
	}

	token := os.Args[1]
	function := os.Args[2]
	serverAddr := "http://localhost:8080"
	if len(os.Args) > 3 {
		serverAddr = "http://localhost" + os.Args[3]
	}

	method := http.MethodGet
	var body io.Reader
	if len(os.Args) > 4 {
		method = http.MethodPost
		body = strings.NewReader(os.Args[4])
	}

	req, err := http.NewRequest(method, serverAddr+"/gateway/"+function, body)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		fmt.Println("❌ Token rejected")
	case http.StatusForbidden:
		fmt.Printf("❌ Tenant may not call %s\n", function)
	case http.StatusNotFound:
		fmt.Printf("❌ No function key configured for %s\n", function)
	default:
		fmt.Printf("✅ Forwarded to %s\n", function)
	}
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Request ID: %s\n", resp.Header.Get("X-Request-Id"))
	fmt.Printf("Body: %s\n", string(respBody))
}
