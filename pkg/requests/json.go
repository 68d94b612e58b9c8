package requests

// requests is a small library for sending JSON to HTTP APIs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// PostJSON marshals body and POSTs it to url. The response body is discarded.
// Any status outside 2xx is an error carrying the response text.
func PostJSON(client *http.Client, url string, body any) error {
	bodyB, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", url, bytes.NewReader(bodyB))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%v. %v", resp.Status, string(msg))
	}
	return nil
}
