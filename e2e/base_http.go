package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseHTTPSuite struct {
	suite.Suite
	Config Config
	client *http.Client
}

// Resp mirrors the server's response envelope.
type Resp struct {
	OK    bool            `json:"ok"`
	Info  json.RawMessage `json:"info"`
	Error string          `json:"error"`
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("E2E_SERVER_ADDR not set")
	}
	s.Config.ServerAddr = strings.TrimRight(s.Config.ServerAddr, "/")
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a header so the scenario reads well in verbose output.
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Call sends a JSON request to /api/v1 and decodes the envelope.
func (s *BaseHTTPSuite) Call(method, path, token string, body any) (int, Resp) {
	var reader io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.Config.ServerAddr+"/api/v1"+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err, "request to "+path+" failed")
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s\nRESPONSE:\n%s", raw, payload)
	}
	s.T().Log(logBuilder.String())

	var out Resp
	s.Require().NoError(json.Unmarshal(payload, &out), "response is not a JSON envelope: %s", payload)
	return resp.StatusCode, out
}

// Info decodes the info field of a successful response into T.
func Info[T any](s *BaseHTTPSuite, resp Resp) T {
	var v T
	s.Require().True(resp.OK, "unexpected error: %s", resp.Error)
	s.Require().NoError(json.Unmarshal(resp.Info, &v))
	return v
}

// Dial opens the event stream of a room.
func (s *BaseHTTPSuite) Dial(roomID, token string) *websocket.Conn {
	url := strings.Replace(s.Config.ServerAddr, "http", "ws", 1) + "/api/v1/rooms/" + roomID + "/events"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	s.Require().NoError(err, "dialing "+url)
	return conn
}
